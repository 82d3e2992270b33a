package check

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Failure messages.
const (
	MsgInvalidCell        = "Invalid cell"
	MsgMissingCellData    = "Missing cell data"
	MsgMissingInverse     = "Reversible cell missing inverse"
	MsgDuplicateID        = "Duplicate cell ID"
	MsgStatsMismatch      = "Statistics mismatch"
	MsgRTermFailed        = "R-term operation failed"
	MsgRTermUndoFailed    = "R-term undo failed"
	MsgRTermRedoFailed    = "R-term redo failed"
	MsgSideEffectMismatch = "D-term side effect mismatch"
	MsgIncomplete         = "Program did not complete"
)

// Result is the verdict of one check.
type Result struct {
	IsConsistent        bool     `json:"is_consistent" yaml:"is_consistent"`
	Message             string   `json:"message,omitempty" yaml:"message,omitempty"`
	Detail              string   `json:"detail,omitempty" yaml:"detail,omitempty"`
	CellID              int64    `json:"cell_id,omitempty" yaml:"cell_id,omitempty"`
	OperationsChecked   int      `json:"operations_checked" yaml:"operations_checked"`
	SideEffectsVerified int      `json:"side_effects_verified" yaml:"side_effects_verified"`
	Warnings            []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func (r *Result) fail(msg string, cellID int64, detail error) {
	r.IsConsistent = false
	r.Message = msg
	r.CellID = cellID
	if detail != nil {
		r.Detail = detail.Error()
	}
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Expectation is one expected irreversible side effect.
type Expectation struct {
	Operation     string   `json:"operation" yaml:"operation"`
	Args          []string `json:"args,omitempty" yaml:"args,omitempty"`
	ShouldSucceed bool     `json:"should_succeed" yaml:"should_succeed"`
}

// LoadExpectations reads a YAML list of expectations. should_succeed
// defaults to true when omitted.
//
//	- operation: print
//	  args: ["done"]
//	- operation: read
//	  should_succeed: false
func LoadExpectations(r io.Reader) ([]Expectation, error) {
	var raw []struct {
		Operation     string   `yaml:"operation"`
		Args          []string `yaml:"args"`
		ShouldSucceed *bool    `yaml:"should_succeed"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("load expectations: %w", err)
	}

	out := make([]Expectation, len(raw))
	for i, e := range raw {
		if e.Operation == "" {
			return nil, fmt.Errorf("load expectations: entry %d: missing operation", i)
		}
		out[i] = Expectation{Operation: e.Operation, Args: e.Args, ShouldSucceed: true}
		if e.ShouldSucceed != nil {
			out[i].ShouldSucceed = *e.ShouldSucceed
		}
	}
	return out, nil
}
