package scenario

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"stampede/internal/httpexec"
)

func noopBuild(label string) BuildFunc {
	return func(s *Session) *httpexec.Request {
		return &httpexec.Request{Label: label, Method: "GET", Path: "/"}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		scenario *Scenario
		wantErr  bool
	}{
		{
			name: "valid weighted",
			scenario: &Scenario{
				Name:  "test",
				Mode:  ModeWeighted,
				Tasks: []Task{{Name: "a", Weight: 1, Build: noopBuild("a")}},
			},
		},
		{
			name: "valid sequential without weights",
			scenario: &Scenario{
				Name:  "test",
				Mode:  ModeSequential,
				Tasks: []Task{{Name: "a", Build: noopBuild("a")}},
			},
		},
		{
			name:     "empty task set",
			scenario: &Scenario{Name: "test", Mode: ModeWeighted},
			wantErr:  true,
		},
		{
			name: "zero weight",
			scenario: &Scenario{
				Name:  "test",
				Mode:  ModeWeighted,
				Tasks: []Task{{Name: "a", Weight: 0, Build: noopBuild("a")}},
			},
			wantErr: true,
		},
		{
			name: "negative weight",
			scenario: &Scenario{
				Name:  "test",
				Mode:  ModeWeighted,
				Tasks: []Task{{Name: "a", Weight: -5, Build: noopBuild("a")}},
			},
			wantErr: true,
		},
		{
			name: "missing builder",
			scenario: &Scenario{
				Name:  "test",
				Mode:  ModeWeighted,
				Tasks: []Task{{Name: "a", Weight: 1}},
			},
			wantErr: true,
		},
		{
			name: "missing name",
			scenario: &Scenario{
				Mode:  ModeWeighted,
				Tasks: []Task{{Name: "a", Weight: 1, Build: noopBuild("a")}},
			},
			wantErr: true,
		},
		{
			name: "inverted wait range",
			scenario: &Scenario{
				Name:  "test",
				Mode:  ModeWeighted,
				Wait:  WaitRange{Min: 2 * time.Second, Max: time.Second},
				Tasks: []Task{{Name: "a", Weight: 1, Build: noopBuild("a")}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scenario.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if tt.wantErr {
				if _, ok := err.(*ConfigError); !ok {
					t.Errorf("Validate() error type = %T, want *ConfigError", err)
				}
			}
		})
	}
}

// Weights {A:90, B:10} over 10000 selections: A in [8800, 9200] and
// B in [800, 1200] (binomial confidence bound).
func TestNext_BinomialBound(t *testing.T) {
	sc := &Scenario{
		Name: "ab",
		Mode: ModeWeighted,
		Tasks: []Task{
			{Name: "A", Weight: 90, Build: noopBuild("A")},
			{Name: "B", Weight: 10, Build: noopBuild("B")},
		},
	}
	if err := sc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	counts := map[string]int{}
	cursor := 0
	for i := 0; i < 10000; i++ {
		counts[sc.Next(rng, &cursor).Name]++
	}

	if counts["A"] < 8800 || counts["A"] > 9200 {
		t.Errorf("A selected %d times, want [8800, 9200]", counts["A"])
	}
	if counts["B"] < 800 || counts["B"] > 1200 {
		t.Errorf("B selected %d times, want [800, 1200]", counts["B"])
	}
}

// Chi-square goodness of fit for a three-way weighted split.
func TestNext_ChiSquare(t *testing.T) {
	sc := &Scenario{
		Name: "split",
		Mode: ModeWeighted,
		Tasks: []Task{
			{Name: "a", Weight: 50, Build: noopBuild("a")},
			{Name: "b", Weight: 30, Build: noopBuild("b")},
			{Name: "c", Weight: 20, Build: noopBuild("c")},
		},
	}
	if err := sc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	const trials = 100000
	rng := rand.New(rand.NewSource(7))
	counts := map[string]float64{}
	cursor := 0
	for i := 0; i < trials; i++ {
		counts[sc.Next(rng, &cursor).Name]++
	}

	expected := map[string]float64{"a": 0.5 * trials, "b": 0.3 * trials, "c": 0.2 * trials}
	chi2 := 0.0
	for name, exp := range expected {
		diff := counts[name] - exp
		chi2 += diff * diff / exp
	}

	// 2 degrees of freedom, p=0.001 critical value is 13.82.
	if chi2 > 13.82 {
		t.Errorf("chi-square = %v, want <= 13.82 (counts: %v)", chi2, counts)
	}
	if math.IsNaN(chi2) {
		t.Error("chi-square is NaN")
	}
}

func TestNext_Sequential(t *testing.T) {
	sc := &Scenario{
		Name: "flow",
		Mode: ModeSequential,
		Tasks: []Task{
			{Name: "register", Build: noopBuild("register")},
			{Name: "browse", Build: noopBuild("browse")},
			{Name: "order", Build: noopBuild("order")},
		},
	}
	if err := sc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	cursor := 0
	want := []string{"register", "browse", "order", "register", "browse", "order", "register"}
	for i, name := range want {
		got := sc.Next(rng, &cursor)
		if got.Name != name {
			t.Errorf("selection %d = %q, want %q", i, got.Name, name)
		}
	}
}

func TestWaitRange_Pick(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w := WaitRange{Min: time.Second, Max: 3 * time.Second}

	for i := 0; i < 1000; i++ {
		d := w.Pick(rng)
		if d < w.Min || d > w.Max {
			t.Fatalf("Pick() = %v, want [%v, %v]", d, w.Min, w.Max)
		}
	}

	fixed := WaitRange{Min: time.Second, Max: time.Second}
	if d := fixed.Pick(rng); d != time.Second {
		t.Errorf("Pick() on fixed range = %v, want 1s", d)
	}
}

// Both endpoints of the range must be reachable.
func TestWaitRange_PickInclusiveBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w := WaitRange{Min: 0, Max: 1} // two possible values: 0ns and 1ns

	seen := map[time.Duration]bool{}
	for i := 0; i < 200; i++ {
		seen[w.Pick(rng)] = true
	}
	if !seen[0] || !seen[1] {
		t.Errorf("200 draws over [0ns, 1ns] saw %v, want both endpoints", seen)
	}
	if len(seen) > 2 {
		t.Errorf("Pick produced values outside the range: %v", seen)
	}
}

func TestTask_ApplyCaptures(t *testing.T) {
	session := NewSession(1)
	task := Task{
		Name:    "Register User",
		Capture: map[string]string{"userId": "userId", "missing": "no.such.path"},
	}

	task.ApplyCaptures(session, []byte(`{"userId": 42, "email": "x@example.com"}`))

	if got, _ := session.Get("userId"); got != "42" {
		t.Errorf("captured userId = %q, want \"42\"", got)
	}
	if _, ok := session.Get("missing"); ok {
		t.Error("capture stored value for path absent from body")
	}
}

func TestSession(t *testing.T) {
	s := NewSession(42)
	if s.ID == "" {
		t.Error("session ID is empty")
	}

	if got := s.GetOr("userId", "77"); got != "77" {
		t.Errorf("GetOr fallback = %q, want \"77\"", got)
	}
	s.Set("userId", "5")
	if got := s.GetOr("userId", "77"); got != "5" {
		t.Errorf("GetOr after Set = %q, want \"5\"", got)
	}

	for i := 0; i < 100; i++ {
		n := s.IntBetween(10, 20)
		if n < 10 || n > 20 {
			t.Fatalf("IntBetween(10, 20) = %d", n)
		}
	}

	// Same seed, same sequence.
	a, b := NewSession(9), NewSession(9)
	if a.IntBetween(0, 1000000) != b.IntBetween(0, 1000000) {
		t.Error("sessions with equal seeds diverged")
	}
}

func TestBuiltins(t *testing.T) {
	names := Names()
	if len(names) == 0 {
		t.Fatal("no built-in scenarios")
	}

	for _, name := range names {
		sc, ok := Get(name)
		if !ok {
			t.Fatalf("Get(%q) not found", name)
		}
		if err := sc.Validate(); err != nil {
			t.Errorf("builtin %q fails validation: %v", name, err)
		}

		// Every task must build a usable request.
		session := NewSession(3)
		for _, task := range sc.Tasks {
			req := task.Build(session)
			if req == nil || req.Method == "" || req.Path == "" {
				t.Errorf("builtin %q task %q builds incomplete request", name, task.Name)
			}
		}
	}

	if _, ok := Get("nope"); ok {
		t.Error("Get(\"nope\") found a scenario")
	}

	if len(Describe()) != len(names) {
		t.Error("Describe() size mismatch with Names()")
	}
}

func TestShoppingFlow_IsSequential(t *testing.T) {
	sc, _ := Get("shopping-flow")
	if sc.Mode != ModeSequential {
		t.Fatalf("shopping-flow mode = %v, want sequential", sc.Mode)
	}

	want := []string{"Flow - Register", "Flow - Browse", "Flow - Order", "Flow - Payment"}
	if len(sc.Tasks) != len(want) {
		t.Fatalf("shopping-flow has %d tasks, want %d", len(sc.Tasks), len(want))
	}
	for i, name := range want {
		if sc.Tasks[i].Name != name {
			t.Errorf("task %d = %q, want %q", i, sc.Tasks[i].Name, name)
		}
	}
}
