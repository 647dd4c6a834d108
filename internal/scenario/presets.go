package scenario

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"stampede/internal/httpexec"
)

// Builtin scenarios simulate typical traffic against an e-commerce API:
// user registration, product browsing, favourites, orders, and payments.

// Get returns a built-in scenario by name.
func Get(name string) (*Scenario, bool) {
	sc, ok := builtins()[name]
	return sc, ok
}

// Names returns the built-in scenario names, sorted.
func Names() []string {
	all := builtins()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns name/description pairs for all built-in scenarios.
func Describe() map[string]string {
	all := builtins()
	result := make(map[string]string, len(all))
	for name, sc := range all {
		result[name] = sc.Description
	}
	return result
}

func builtins() map[string]*Scenario {
	return map[string]*Scenario{
		"ecommerce":     Ecommerce(),
		"highload":      HighLoad(),
		"shopping-flow": ShoppingFlow(),
		"user-service":  UserService(),
		"order-service": OrderService(),
	}
}

// Ecommerce simulates a typical mix of e-commerce user behavior:
// mostly browsing, with registration, favourites, orders, and payments
// mixed in at lower rates.
func Ecommerce() *Scenario {
	return &Scenario{
		Name:        "ecommerce",
		Description: "Typical e-commerce user mix: browse-heavy with registration, favourites, orders, payments",
		Mode:        ModeWeighted,
		Wait:        WaitRange{Min: 1 * time.Second, Max: 3 * time.Second},
		Tasks: []Task{
			registerTask("Register User", 10),
			{
				Name:   "Browse Products",
				Weight: 20,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "Browse Products", Method: http.MethodGet, Path: "/api/products"}
				},
			},
			{
				Name:   "View Product",
				Weight: 20,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{
						Label:  "View Product",
						Method: http.MethodGet,
						Path:   fmt.Sprintf("/api/products/%d", s.IntBetween(1, 100)),
					}
				},
			},
			{
				Name:   "Add to Favourites",
				Weight: 10,
				Build: func(s *Session) *httpexec.Request {
					userID := s.GetOr("userId", fmt.Sprint(s.IntBetween(1, 1000)))
					body := fmt.Sprintf(`{"userId": %s, "productId": %d}`, userID, s.IntBetween(1, 100))
					return &httpexec.Request{
						Label:  "Add to Favourites",
						Method: http.MethodPost,
						Path:   "/api/favourites",
						Body:   []byte(body),
						Accept: httpexec.StatusRange{Min: 200, Max: 201},
					}
				},
			},
			{
				Name:   "View Favourites",
				Weight: 10,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "View Favourites", Method: http.MethodGet, Path: "/api/favourites"}
				},
			},
			orderTask("Create Order", 10),
			{
				Name:   "View Orders",
				Weight: 10,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "View Orders", Method: http.MethodGet, Path: "/api/orders"}
				},
			},
			paymentTask("Create Payment", 5),
			{
				Name:   "View Payments",
				Weight: 5,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "View Payments", Method: http.MethodGet, Path: "/api/payments"}
				},
			},
		},
	}
}

// HighLoad hammers read endpoints with very short think times.
func HighLoad() *Scenario {
	return &Scenario{
		Name:        "highload",
		Description: "Stress mix: rapid product browsing with minimal think time",
		Mode:        ModeWeighted,
		Wait:        WaitRange{Min: 100 * time.Millisecond, Max: 500 * time.Millisecond},
		Tasks: []Task{
			{
				Name:   "High Load - Browse Products",
				Weight: 3,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "High Load - Browse Products", Method: http.MethodGet, Path: "/api/products"}
				},
			},
			{
				Name:   "High Load - View Product",
				Weight: 2,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{
						Label:  "High Load - View Product",
						Method: http.MethodGet,
						Path:   fmt.Sprintf("/api/products/%d", s.IntBetween(1, 100)),
					}
				},
			},
			{
				Name:   "High Load - View Users",
				Weight: 1,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "High Load - View Users", Method: http.MethodGet, Path: "/api/users"}
				},
			},
		},
	}
}

// ShoppingFlow walks the full purchase path in order:
// register, browse, order, pay.
func ShoppingFlow() *Scenario {
	return &Scenario{
		Name:        "shopping-flow",
		Description: "Sequential shopping flow: register -> browse -> order -> payment",
		Mode:        ModeSequential,
		Wait:        WaitRange{Min: 2 * time.Second, Max: 5 * time.Second},
		Tasks: []Task{
			registerTask("Flow - Register", 0),
			{
				Name: "Flow - Browse",
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "Flow - Browse", Method: http.MethodGet, Path: "/api/products"}
				},
			},
			orderTask("Flow - Order", 0),
			paymentTask("Flow - Payment", 0),
		},
	}
}

// UserService focuses load on the user service endpoints.
func UserService() *Scenario {
	return &Scenario{
		Name:        "user-service",
		Description: "User service focus: list, fetch by ID, create",
		Mode:        ModeWeighted,
		Wait:        WaitRange{Min: 500 * time.Millisecond, Max: 2 * time.Second},
		Tasks: []Task{
			{
				Name:   "User Service - Get All",
				Weight: 5,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "User Service - Get All", Method: http.MethodGet, Path: "/api/users"}
				},
			},
			{
				Name:   "User Service - Get By ID",
				Weight: 3,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{
						Label:  "User Service - Get By ID",
						Method: http.MethodGet,
						Path:   fmt.Sprintf("/api/users/%d", s.IntBetween(1, 1000)),
					}
				},
			},
			{
				Name:    "User Service - Create",
				Weight:  2,
				Build:   buildRegisterRequest("User Service - Create"),
				Capture: map[string]string{"userId": "userId"},
			},
		},
	}
}

// OrderService focuses load on the order service endpoints.
func OrderService() *Scenario {
	return &Scenario{
		Name:        "order-service",
		Description: "Order service focus: list, fetch by ID, create",
		Mode:        ModeWeighted,
		Wait:        WaitRange{Min: 500 * time.Millisecond, Max: 2 * time.Second},
		Tasks: []Task{
			{
				Name:   "Order Service - Get All",
				Weight: 5,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{Label: "Order Service - Get All", Method: http.MethodGet, Path: "/api/orders"}
				},
			},
			{
				Name:   "Order Service - Get By ID",
				Weight: 3,
				Build: func(s *Session) *httpexec.Request {
					return &httpexec.Request{
						Label:  "Order Service - Get By ID",
						Method: http.MethodGet,
						Path:   fmt.Sprintf("/api/orders/%d", s.IntBetween(1, 1000)),
					}
				},
			},
			orderTask("Order Service - Create", 2),
		},
	}
}

func registerTask(label string, weight int) Task {
	return Task{
		Name:    label,
		Weight:  weight,
		Build:   buildRegisterRequest(label),
		Capture: map[string]string{"userId": "userId"},
	}
}

func buildRegisterRequest(label string) BuildFunc {
	return func(s *Session) *httpexec.Request {
		n := s.IntBetween(1000, 9999)
		body := fmt.Sprintf(
			`{"firstName": "TestUser%d", "lastName": "Performance", "email": "test%d@example.com", "phone": "%d"}`,
			n, n, s.IntBetween(1000000000, 2000000000),
		)
		return &httpexec.Request{
			Label:  label,
			Method: http.MethodPost,
			Path:   "/api/users",
			Body:   []byte(body),
		}
	}
}

func orderTask(label string, weight int) Task {
	return Task{
		Name:   label,
		Weight: weight,
		Build: func(s *Session) *httpexec.Request {
			body := fmt.Sprintf(
				`{"orderDesc": "Load Test Order %d", "orderFee": %d.%02d, "cart": {"cartId": %d}}`,
				s.IntBetween(1000, 9999), s.IntBetween(10, 500), s.IntBetween(0, 99), s.IntBetween(1, 1000),
			)
			return &httpexec.Request{
				Label:  label,
				Method: http.MethodPost,
				Path:   "/api/orders",
				Body:   []byte(body),
			}
		},
		Capture: map[string]string{"orderId": "orderId"},
	}
}

func paymentTask(label string, weight int) Task {
	return Task{
		Name:   label,
		Weight: weight,
		Build: func(s *Session) *httpexec.Request {
			orderID := s.GetOr("orderId", fmt.Sprint(s.IntBetween(1, 1000)))
			body := fmt.Sprintf(`{"orderDto": {"orderId": %s}}`, orderID)
			return &httpexec.Request{
				Label:  label,
				Method: http.MethodPost,
				Path:   "/api/payments",
				Body:   []byte(body),
				Accept: httpexec.StatusRange{Min: 200, Max: 201},
			}
		},
	}
}
