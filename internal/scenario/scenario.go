// Package scenario defines weighted and sequential task lists for
// simulated users.
package scenario

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"stampede/internal/httpexec"
)

// ConfigError reports an invalid scenario definition.
// It is fatal: no load is generated for a scenario that fails validation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "configuration error on '" + e.Field + "': " + e.Message
}

// Mode selects how the next task is chosen.
type Mode string

const (
	// ModeWeighted picks tasks with probability proportional to weight.
	ModeWeighted Mode = "weighted"

	// ModeSequential executes tasks in declaration order, wrapping around.
	ModeSequential Mode = "sequential"
)

// WaitRange is the think-time interval between task executions.
type WaitRange struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a randomized think time in [Min, Max], both ends
// inclusive.
func (w WaitRange) Pick(rng *rand.Rand) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(rng.Int63n(int64(w.Max-w.Min)+1))
}

// Session holds one simulated user's state across task executions:
// identity, captured values from earlier responses, and a private RNG.
//
// A Session is owned by a single user goroutine and is not safe for
// concurrent use.
type Session struct {
	// ID uniquely identifies the simulated user within a run.
	ID string

	rng  *rand.Rand
	vars map[string]string
}

// NewSession creates a session with its own deterministic RNG.
func NewSession(seed int64) *Session {
	return &Session{
		ID:   uuid.NewString(),
		rng:  rand.New(rand.NewSource(seed)),
		vars: make(map[string]string),
	}
}

// Rand returns the session's private RNG.
func (s *Session) Rand() *rand.Rand {
	return s.rng
}

// Set stores a captured value.
func (s *Session) Set(key, value string) {
	s.vars[key] = value
}

// Get returns a captured value and whether it was present.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.vars[key]
	return v, ok
}

// GetOr returns a captured value, or fallback if absent.
func (s *Session) GetOr(key, fallback string) string {
	if v, ok := s.vars[key]; ok && v != "" {
		return v
	}
	return fallback
}

// IntBetween returns a random integer in [min, max].
func (s *Session) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.rng.Intn(max-min+1)
}

// BuildFunc builds the HTTP request a task performs for a given session.
type BuildFunc func(s *Session) *httpexec.Request

// Task is one operation against the target system.
type Task struct {
	// Name is the endpoint label outcomes are aggregated under.
	Name string

	// Weight determines selection probability in weighted mode.
	// Ignored in sequential mode.
	Weight int

	// Build produces the request for this execution.
	Build BuildFunc

	// Capture maps session variable names to gjson paths evaluated
	// against successful response bodies.
	Capture map[string]string
}

// Scenario is a named set of tasks with a think-time range.
type Scenario struct {
	Name        string
	Description string
	Mode        Mode
	Wait        WaitRange
	Tasks       []Task

	compileOnce sync.Once
	cumulative  []int
	totalWeight int
}

// Validate checks the scenario definition.
//
// A scenario must have at least one task; in weighted mode every weight
// must be positive.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return &ConfigError{Field: "name", Message: "scenario name is required"}
	}
	if len(sc.Tasks) == 0 {
		return &ConfigError{Field: "tasks", Message: "at least one task is required"}
	}
	if sc.Mode == "" {
		sc.Mode = ModeWeighted
	}
	if sc.Mode != ModeWeighted && sc.Mode != ModeSequential {
		return &ConfigError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", sc.Mode)}
	}
	if sc.Wait.Min < 0 || sc.Wait.Max < sc.Wait.Min {
		return &ConfigError{Field: "wait", Message: "wait range must satisfy 0 <= min <= max"}
	}

	for i, task := range sc.Tasks {
		if task.Name == "" {
			return &ConfigError{Field: fmt.Sprintf("tasks[%d].name", i), Message: "task name is required"}
		}
		if task.Build == nil {
			return &ConfigError{Field: fmt.Sprintf("tasks[%d]", i), Message: "task has no request builder"}
		}
		if sc.Mode == ModeWeighted && task.Weight <= 0 {
			return &ConfigError{
				Field:   fmt.Sprintf("tasks[%d].weight", i),
				Message: fmt.Sprintf("weight must be positive, got %d", task.Weight),
			}
		}
	}

	return nil
}

// compile builds the cumulative weight table for the discrete sampler.
func (sc *Scenario) compile() {
	sc.compileOnce.Do(func() {
		sc.cumulative = make([]int, len(sc.Tasks))
		total := 0
		for i, task := range sc.Tasks {
			total += task.Weight
			sc.cumulative[i] = total
		}
		sc.totalWeight = total
	})
}

// Next selects the next task.
//
// In weighted mode the choice is drawn from the discrete distribution
// declared by the weights. In sequential mode tasks run in order, tracked
// by the caller's cursor, wrapping at the end.
func (sc *Scenario) Next(rng *rand.Rand, cursor *int) *Task {
	if sc.Mode == ModeSequential {
		task := &sc.Tasks[*cursor%len(sc.Tasks)]
		*cursor++
		return task
	}

	sc.compile()
	n := rng.Intn(sc.totalWeight)
	for i, cum := range sc.cumulative {
		if n < cum {
			return &sc.Tasks[i]
		}
	}
	// Unreachable when weights are validated.
	return &sc.Tasks[len(sc.Tasks)-1]
}

// ApplyCaptures extracts declared values from a successful response body
// into the session.
func (t *Task) ApplyCaptures(s *Session, body []byte) {
	if len(t.Capture) == 0 || len(body) == 0 {
		return
	}
	for name, path := range t.Capture {
		if result := gjson.GetBytes(body, path); result.Exists() {
			s.Set(name, result.String())
		}
	}
}
