package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rio/internal/check"
	"github.com/roach88/rio/internal/lower"
)

// DefaultBits is the machine width used when a scenario omits bits.
const DefaultBits = 8

// DefaultMaxTicks bounds a scenario that ticks until its mailboxes drain.
const DefaultMaxTicks = 1000

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Machine shape. Seed lists data bits set before the run.
	Bits     int   `yaml:"bits,omitempty"`
	Ancillas int   `yaml:"ancillas,omitempty"`
	Seed     []int `yaml:"seed,omitempty"`

	// Program, as send operations lowered into cells.
	Strict   bool            `yaml:"strict,omitempty"`
	Sends    []lower.SendOp  `yaml:"sends,omitempty"`
	Inherits []lower.Inherit `yaml:"inherits,omitempty"`

	// Actors holds inline actor definitions; ActorFiles are read relative
	// to the scenario file.
	Actors     string        `yaml:"actors,omitempty"`
	ActorFiles []string      `yaml:"actor_files,omitempty"`
	Messages   []MessageStep `yaml:"messages,omitempty"`

	// Ticks is how many ticks to run. Zero ticks until the mailboxes
	// drain, at most DefaultMaxTicks times.
	Ticks int `yaml:"ticks,omitempty"`

	// Expect lists the side effects the consistency check should observe.
	Expect []ExpectStep `yaml:"expect,omitempty"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// Dir is the directory the scenario was loaded from.
	Dir string `yaml:"-"`
}

// MessageStep is one message injected before ticking.
type MessageStep struct {
	Actor   string `yaml:"actor"`
	Event   string `yaml:"event"`
	Payload string `yaml:"payload,omitempty"`
}

// ExpectStep is an expected side effect. ShouldSucceed defaults to true.
type ExpectStep struct {
	Operation     string   `yaml:"operation"`
	Args          []string `yaml:"args,omitempty"`
	ShouldSucceed *bool    `yaml:"should_succeed,omitempty"`
}

// Expectations converts the expect section for the checker.
func (s *Scenario) Expectations() []check.Expectation {
	out := make([]check.Expectation, len(s.Expect))
	for i, e := range s.Expect {
		ok := true
		if e.ShouldSucceed != nil {
			ok = *e.ShouldSucceed
		}
		out[i] = check.Expectation{Operation: e.Operation, Args: e.Args, ShouldSucceed: ok}
	}
	return out
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind and Subject select trace events (trace_contains, trace_count).
	Kind    string `yaml:"kind,omitempty"`
	Subject string `yaml:"subject,omitempty"`

	// Detail is a substring the matching event's detail must contain
	// (trace_contains).
	Detail string `yaml:"detail,omitempty"`

	// Subjects is the expected order (trace_order).
	Subjects []string `yaml:"subjects,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actor and Field select a state value; Bit selects a bit
	// (final_state). Value is the expected rendering.
	Actor string `yaml:"actor,omitempty"`
	Field string `yaml:"field,omitempty"`
	Bit   *int   `yaml:"bit,omitempty"`
	Value string `yaml:"value,omitempty"`

	// Consistent is the expected checker verdict (consistent).
	Consistent *bool `yaml:"consistent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertConsistent    = "consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.Dir = filepath.Dir(path)

	for _, f := range s.ActorFiles {
		if _, err := os.Stat(s.resolve(f)); err != nil {
			return nil, fmt.Errorf("invalid scenario: actor file not found: %s", f)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML. Actor file paths are not checked.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if s.Bits == 0 {
		s.Bits = DefaultBits
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) resolve(path string) string {
	if filepath.IsAbs(path) || s.Dir == "" {
		return path
	}
	return filepath.Join(s.Dir, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Sends) == 0 && s.Actors == "" && len(s.ActorFiles) == 0 {
		return fmt.Errorf("sends or actors are required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Bits < 1 {
		return fmt.Errorf("bits must be positive, got %d", s.Bits)
	}
	if s.Ancillas < 0 {
		return fmt.Errorf("ancillas must not be negative, got %d", s.Ancillas)
	}
	for i, b := range s.Seed {
		if b < 0 || b >= s.Bits {
			return fmt.Errorf("seed[%d]: bit %d outside %d data bits", i, b, s.Bits)
		}
	}
	if s.Ticks < 0 {
		return fmt.Errorf("ticks must not be negative, got %d", s.Ticks)
	}

	for i, m := range s.Messages {
		if m.Actor == "" || m.Event == "" {
			return fmt.Errorf("messages[%d]: actor and event are required", i)
		}
	}
	for i, e := range s.Expect {
		if e.Operation == "" {
			return fmt.Errorf("expect[%d]: operation is required", i)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Subject == "" {
			return fmt.Errorf("assertions[%d]: subject is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Subjects) == 0 {
			return fmt.Errorf("assertions[%d]: subjects list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Subject == "" {
			return fmt.Errorf("assertions[%d]: subject is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Bit == nil && (a.Actor == "" || a.Field == "") {
			return fmt.Errorf("assertions[%d]: final_state needs actor and field, or bit", index)
		}
	case AssertConsistent:
		if a.Consistent == nil {
			return fmt.Errorf("assertions[%d]: consistent is required for consistent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
