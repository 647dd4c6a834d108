// Package api exposes a small HTTP control surface for interactive runs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stampede/internal/metrics"
	"stampede/internal/scenario"
)

// Run is the control interface the server drives. A *runner.Runner
// satisfies it.
type Run interface {
	ID() string
	Snapshot() *metrics.Snapshot
	Stop()
}

// Server serves run status and accepts a stop request while a test is
// active.
type Server struct {
	addr string

	mu       sync.RWMutex
	run      Run
	scenario string
	host     string

	server *http.Server
}

// NewServer creates a control server listening on addr.
func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

// Attach binds the active run to the control surface.
func (s *Server) Attach(run Run, scenarioName, host string) {
	s.mu.Lock()
	s.run = run
	s.scenario = scenarioName
	s.host = host
	s.mu.Unlock()
}

// Detach clears the active run after it completes.
func (s *Server) Detach() {
	s.mu.Lock()
	s.run = nil
	s.mu.Unlock()
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler returns the route table without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/scenarios", s.handleScenarios)
	mux.HandleFunc("/api/stop", s.handleStop)
	return mux
}

// StatusResponse reports whether a run is active and its identity.
type StatusResponse struct {
	Running     bool   `json:"running"`
	RunID       string `json:"runId,omitempty"`
	Scenario    string `json:"scenario,omitempty"`
	Host        string `json:"host,omitempty"`
	Phase       string `json:"phase,omitempty"`
	ActiveUsers int    `json:"activeUsers"`
	ElapsedMs   int64  `json:"elapsedMs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	run, scenarioName, host := s.run, s.scenario, s.host
	s.mu.RUnlock()

	resp := StatusResponse{}
	if run != nil {
		snap := run.Snapshot()
		resp = StatusResponse{
			Running:     true,
			RunID:       run.ID(),
			Scenario:    scenarioName,
			Host:        host,
			Phase:       string(snap.CurrentPhase),
			ActiveUsers: snap.ActiveUsers,
			ElapsedMs:   snap.Elapsed.Milliseconds(),
		}
	}

	writeJSON(w, resp)
}

// MetricsResponse is the live aggregate view of the active run.
type MetricsResponse struct {
	TotalRequests  int64   `json:"totalRequests"`
	FailedRequests int64   `json:"failedRequests"`
	FailureRate    float64 `json:"failureRate"`
	RPS            float64 `json:"rps"`
	CurrentRPS     float64 `json:"currentRps"`
	P50Ms          float64 `json:"p50Ms"`
	P95Ms          float64 `json:"p95Ms"`
	P99Ms          float64 `json:"p99Ms"`

	PerLabel map[string]metrics.LabelStats `json:"perLabel,omitempty"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	run := s.run
	s.mu.RUnlock()

	if run == nil {
		http.Error(w, "No run active", http.StatusNotFound)
		return
	}

	snap := run.Snapshot()
	writeJSON(w, MetricsResponse{
		TotalRequests:  snap.TotalRequests,
		FailedRequests: snap.FailedRequests,
		FailureRate:    snap.FailureRate,
		RPS:            snap.RPS,
		CurrentRPS:     snap.CurrentRPS,
		P50Ms:          float64(snap.Latency.P50) / float64(time.Millisecond),
		P95Ms:          float64(snap.Latency.P95) / float64(time.Millisecond),
		P99Ms:          float64(snap.Latency.P99) / float64(time.Millisecond),
		PerLabel:       snap.PerLabel,
	})
}

// ScenarioInfo is a name/description pair for one built-in scenario.
type ScenarioInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	described := scenario.Describe()
	infos := make([]ScenarioInfo, 0, len(described))
	for _, name := range scenario.Names() {
		infos = append(infos, ScenarioInfo{Name: name, Description: described[name]})
	}
	writeJSON(w, infos)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	run := s.run
	s.mu.RUnlock()

	if run == nil {
		http.Error(w, "No run active", http.StatusBadRequest)
		return
	}

	run.Stop()
	writeJSON(w, map[string]string{"status": "stop requested", "runId": run.ID()})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
	}
}
