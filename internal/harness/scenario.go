package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pacer/internal/command"
)

// Scenario is a scripted session replayed against the service.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// UserID defaults to DefaultUserID.
	UserID string `yaml:"user_id,omitempty"`

	// Settings override the default user settings before the flow starts.
	Settings *SettingsOverride `yaml:"settings,omitempty"`

	// Flow is executed in order. Each step sets exactly one of Invoke,
	// Advance or Remote.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultUserID owns scenario data when a scenario names no user.
const DefaultUserID = "scenario-user"

// SettingsOverride replaces individual default settings.
type SettingsOverride struct {
	DueEveryN             *int     `yaml:"due_every_n,omitempty"`
	WarningThreshold      *float64 `yaml:"warning_threshold,omitempty"`
	DefaultNegativeVolume *float64 `yaml:"default_negative_volume,omitempty"`
	ReminderInterval      string   `yaml:"reminder_interval,omitempty"`
}

// FlowStep is one scenario step.
type FlowStep struct {
	// Invoke is a command type, e.g. "append_event".
	Invoke string `yaml:"invoke,omitempty"`

	// Args are the command's fields.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect, if set, is checked against the command's completion.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Advance moves the clock forward by a Go duration.
	Advance string `yaml:"advance,omitempty"`

	// Remote switches the remote store "offline" or "online".
	Remote string `yaml:"remote,omitempty"`
}

// ExpectClause specifies the expected completion.
type ExpectClause struct {
	// Case is "ok" or an error code such as CONSTRAINT_VIOLATION.
	Case string `yaml:"case"`

	// Result is a subset match against the completion result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Command is used by trace_contains and trace_count.
	Command string `yaml:"command,omitempty"`

	// Args are matched as a subset by trace_contains.
	Args map[string]any `yaml:"args,omitempty"`

	// Count is used by trace_count.
	Count int `yaml:"count,omitempty"`

	// Commands is the expected order for trace_order.
	Commands []string `yaml:"commands,omitempty"`

	// Session selects the session for final_state.
	Session string `yaml:"session,omitempty"`

	// Expect holds expected values for final_state, sync_status,
	// remote_records and notifications.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertSyncStatus    = "sync_status"
	AssertRemoteRecords = "remote_records"
	AssertNotifications = "notifications"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Settings != nil && s.Settings.ReminderInterval != "" {
		if _, err := time.ParseDuration(s.Settings.ReminderInterval); err != nil {
			return fmt.Errorf("settings.reminder_interval: %w", err)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step FlowStep) error {
	set := 0
	for _, v := range []string{step.Invoke, step.Advance, step.Remote} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("flow[%d]: exactly one of invoke, advance or remote is required", i)
	}

	switch {
	case step.Invoke != "":
		if !knownCommand(step.Invoke) {
			return fmt.Errorf("flow[%d]: unknown command %q", i, step.Invoke)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("flow[%d]: advance: %w", i, err)
		}
		if d < 0 {
			return fmt.Errorf("flow[%d]: advance must not be negative", i)
		}
	case step.Remote != "":
		if step.Remote != "offline" && step.Remote != "online" {
			return fmt.Errorf("flow[%d]: remote must be offline or online, got %q", i, step.Remote)
		}
	}

	if step.Invoke == "" && (step.Args != nil || step.Expect != nil) {
		return fmt.Errorf("flow[%d]: args and expect apply to invoke steps only", i)
	}
	return nil
}

func knownCommand(name string) bool {
	for _, t := range command.Types {
		if string(t) == name {
			return true
		}
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Commands) == 0 {
			return fmt.Errorf("assertions[%d]: commands list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Session == "" {
			return fmt.Errorf("assertions[%d]: session is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertSyncStatus, AssertRemoteRecords, AssertNotifications:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
