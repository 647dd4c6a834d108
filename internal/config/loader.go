// Package config loads custom scenario definitions from YAML files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"stampede/internal/httpexec"
	"stampede/internal/scenario"
)

// ScenarioFile is the YAML document describing a custom scenario.
type ScenarioFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Mode        string     `yaml:"mode"`
	Wait        WaitConfig `yaml:"wait"`
	Tasks       []TaskDef  `yaml:"tasks"`
}

// WaitConfig is the think-time range in the YAML document.
type WaitConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// TaskDef describes one HTTP task in the YAML document.
//
// Path, body, and header values may reference session variables as
// ${name}; references resolve against values captured from earlier
// responses, or the empty string when absent.
type TaskDef struct {
	Name    string            `yaml:"name"`
	Weight  int               `yaml:"weight"`
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`

	// SuccessOn is a status range like "200-299" or "201".
	// Empty means the default success range.
	SuccessOn string `yaml:"successOn"`

	// Capture maps session variable names to gjson paths evaluated
	// against successful response bodies.
	Capture map[string]string `yaml:"capture"`

	// Schema is an inline JSON schema asserted against response bodies.
	Schema string `yaml:"schema"`
}

// Load reads and compiles a scenario definition from path.
func Load(path string) (*scenario.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &scenario.ConfigError{Field: "config", Message: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Parse(data)
}

// Parse compiles a YAML scenario document.
func Parse(data []byte) (*scenario.Scenario, error) {
	var file ScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &scenario.ConfigError{Field: "config", Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	return Compile(&file)
}

// Compile turns a parsed document into a validated scenario.
func Compile(file *ScenarioFile) (*scenario.Scenario, error) {
	sc := &scenario.Scenario{
		Name:        file.Name,
		Description: file.Description,
		Mode:        scenario.Mode(file.Mode),
		Wait:        scenario.WaitRange{Min: file.Wait.Min, Max: file.Wait.Max},
	}

	for i, def := range file.Tasks {
		task, err := compileTask(i, def)
		if err != nil {
			return nil, err
		}
		sc.Tasks = append(sc.Tasks, task)
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func compileTask(index int, def TaskDef) (scenario.Task, error) {
	field := func(name string) string { return fmt.Sprintf("tasks[%d].%s", index, name) }

	method := strings.ToUpper(strings.TrimSpace(def.Method))
	if method == "" {
		method = "GET"
	}
	switch method {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS":
	default:
		return scenario.Task{}, &scenario.ConfigError{Field: field("method"), Message: fmt.Sprintf("unsupported method %q", def.Method)}
	}

	if def.Path == "" {
		return scenario.Task{}, &scenario.ConfigError{Field: field("path"), Message: "path is required"}
	}
	if !strings.HasPrefix(def.Path, "/") {
		return scenario.Task{}, &scenario.ConfigError{Field: field("path"), Message: fmt.Sprintf("path must start with /, got %q", def.Path)}
	}

	var accept httpexec.StatusRange
	if def.SuccessOn != "" {
		parsed, err := httpexec.ParseStatusRange(def.SuccessOn)
		if err != nil {
			return scenario.Task{}, &scenario.ConfigError{Field: field("successOn"), Message: err.Error()}
		}
		accept = parsed
	}

	schema, err := compileSchema(def.Schema)
	if err != nil {
		return scenario.Task{}, &scenario.ConfigError{Field: field("schema"), Message: err.Error()}
	}

	label := def.Name
	path := def.Path
	body := def.Body
	headers := def.Headers

	build := func(s *scenario.Session) *httpexec.Request {
		req := &httpexec.Request{
			Label:  label,
			Method: method,
			Path:   expand(s, path),
			Accept: accept,
			Schema: schema,
		}
		if body != "" {
			req.Body = []byte(expand(s, body))
		}
		if len(headers) > 0 {
			req.Header = make(map[string]string, len(headers))
			for key, value := range headers {
				req.Header[key] = expand(s, value)
			}
		}
		return req
	}

	return scenario.Task{
		Name:    def.Name,
		Weight:  def.Weight,
		Build:   build,
		Capture: def.Capture,
	}, nil
}

func compileSchema(schemaJSON string) (*jsonschema.Schema, error) {
	if schemaJSON == "" {
		return nil, nil
	}
	return httpexec.CompileSchema(schemaJSON)
}

// expand replaces ${name} references with session variable values.
// Unknown references expand to the empty string.
func expand(s *scenario.Session, text string) string {
	if !strings.Contains(text, "${") {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))
	for {
		start := strings.Index(text, "${")
		if start < 0 {
			out.WriteString(text)
			break
		}
		end := strings.Index(text[start:], "}")
		if end < 0 {
			out.WriteString(text)
			break
		}
		out.WriteString(text[:start])
		name := text[start+2 : start+end]
		out.WriteString(s.GetOr(name, ""))
		text = text[start+end+1:]
	}
	return out.String()
}
