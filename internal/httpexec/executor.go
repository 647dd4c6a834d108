// Package httpexec performs single HTTP calls on behalf of simulated users
// and classifies their outcomes.
package httpexec

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StatusRange is an inclusive range of HTTP status codes treated as success.
type StatusRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// DefaultAccept is the success range used when a task declares none.
var DefaultAccept = StatusRange{Min: 200, Max: 399}

// Contains reports whether code falls inside the range.
func (r StatusRange) Contains(code int) bool {
	return code >= r.Min && code <= r.Max
}

// IsZero reports whether the range is unset.
func (r StatusRange) IsZero() bool {
	return r.Min == 0 && r.Max == 0
}

// ParseStatusRange parses "200-299" or a single code like "200".
func ParseStatusRange(s string) (StatusRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusRange{}, fmt.Errorf("empty status range")
	}

	var min, max int
	if strings.Contains(s, "-") {
		if _, err := fmt.Sscanf(s, "%d-%d", &min, &max); err != nil {
			return StatusRange{}, fmt.Errorf("invalid status range %q: %w", s, err)
		}
	} else {
		if _, err := fmt.Sscanf(s, "%d", &min); err != nil {
			return StatusRange{}, fmt.Errorf("invalid status range %q: %w", s, err)
		}
		max = min
	}

	if min < 100 || max > 599 || min > max {
		return StatusRange{}, fmt.Errorf("invalid status range %q", s)
	}
	return StatusRange{Min: min, Max: max}, nil
}

// Request describes one HTTP call to perform against the target host.
type Request struct {
	// Label is the endpoint label outcomes are aggregated under.
	Label string

	Method string
	Path   string
	Header map[string]string
	Body   []byte

	// Accept is the success status range. Zero value means DefaultAccept.
	Accept StatusRange

	// Schema optionally validates the response body; a violation
	// classifies the outcome as a failure.
	Schema *jsonschema.Schema
}

// Outcome is the immutable result of one request.
//
// Exactly one Outcome is produced per Do invocation, whatever happens on
// the wire.
type Outcome struct {
	Label      string
	Start      time.Time
	Latency    time.Duration
	StatusCode int
	OK         bool
	Err        error
	Bytes      int64

	// Body is retained for session captures; never serialized.
	Body []byte
}

// Config contains HTTP client configuration for the executor.
type Config struct {
	BaseURL string

	// Timeout applies to every call. A timeout is recorded as a failed
	// outcome, never raised.
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
	InsecureSkipVerify  bool
}

// DefaultConfig returns sensible defaults for load testing.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:             baseURL,
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// Executor issues HTTP calls, measures latency, and classifies outcomes.
//
// A single Executor (and its pooled transport) is shared by all simulated
// users in a run.
type Executor struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// New creates an executor with a transport tuned per cfg.
func New(cfg Config) *Executor {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Executor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Transport: transport},
	}
}

// BaseURL returns the configured target host URL.
func (e *Executor) BaseURL() string {
	return e.baseURL
}

// Do performs one call and returns its outcome.
//
// Network and timeout errors are captured in the outcome as failures; Do
// never panics and never returns nil.
func (e *Executor) Do(ctx context.Context, req *Request) *Outcome {
	outcome := &Outcome{
		Label: req.Label,
		Start: time.Now(),
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, e.baseURL+req.Path, body)
	if err != nil {
		outcome.Latency = time.Since(outcome.Start)
		outcome.Err = fmt.Errorf("build request: %w", err)
		return outcome
	}

	for key, value := range req.Header {
		httpReq.Header.Set(key, value)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		outcome.Latency = time.Since(outcome.Start)
		outcome.Err = err
		return outcome
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	outcome.Latency = time.Since(outcome.Start)
	outcome.StatusCode = resp.StatusCode

	if err != nil {
		outcome.Err = fmt.Errorf("read response body: %w", err)
		return outcome
	}

	outcome.Bytes = int64(len(respBody))
	outcome.Body = respBody

	accept := req.Accept
	if accept.IsZero() {
		accept = DefaultAccept
	}
	if !accept.Contains(resp.StatusCode) {
		outcome.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return outcome
	}

	if req.Schema != nil {
		if err := validateBody(req.Schema, respBody); err != nil {
			outcome.Err = fmt.Errorf("response schema: %w", err)
			return outcome
		}
	}

	outcome.OK = true
	return outcome
}

// Probe checks that the target host is reachable. Any HTTP response,
// including an error status, counts as reachable.
func (e *Executor) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("invalid host URL %q: %w", e.baseURL, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("host %s unreachable: %w", e.baseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// CloseIdle releases pooled connections.
func (e *Executor) CloseIdle() {
	e.client.CloseIdleConnections()
}

func validateBody(schema *jsonschema.Schema, body []byte) error {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return schema.Validate(data)
}

// CompileSchema compiles a JSON schema document for response assertions.
func CompileSchema(schemaJSON string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}
