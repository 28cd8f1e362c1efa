package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted conversation with the server. Scenarios are
// driven line by line: each step sends one client line and captures the
// server's reply, optionally advancing the session clock first so the
// farewell's elapsed figure is deterministic.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// SessionID is the fixed server session ID for the run.
	SessionID string `yaml:"session_id"`

	// Steps is the conversation script, in order.
	Steps []Step `yaml:"steps"`
}

// Step is one client action. A step with only advance_ms moves the
// clock without sending anything.
type Step struct {
	// Send is the client line to write, without the trailing newline.
	Send string `yaml:"send,omitempty"`

	// Expect, when set, is the exact reply the server must produce.
	Expect string `yaml:"expect,omitempty"`

	// AdvanceMS moves the session clock forward before sending.
	AdvanceMS int64 `yaml:"advance_ms,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos in scripts fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}

	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if sc.SessionID == "" {
		return nil, fmt.Errorf("scenario %s: missing session_id", path)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: no steps", path)
	}
	for i, step := range sc.Steps {
		if step.Send == "" && step.AdvanceMS == 0 {
			return nil, fmt.Errorf("scenario %s: step %d does nothing", path, i+1)
		}
		if step.Send == "" && step.Expect != "" {
			return nil, fmt.Errorf("scenario %s: step %d expects a reply without sending", path, i+1)
		}
		if step.AdvanceMS < 0 {
			return nil, fmt.Errorf("scenario %s: step %d has negative advance_ms", path, i+1)
		}
	}
	return &sc, nil
}
