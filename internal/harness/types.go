package harness

import "github.com/roach88/rio/internal/check"

// Trace event kinds.
const (
	KindCell       = "cell"
	KindEffect     = "effect"
	KindMessage    = "message"
	KindLog        = "log"
	KindDiagnostic = "diagnostic"
)

// TraceEvent is one observable step of a scenario run.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Detail  string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the program ran and every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains execution and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Check is the consistency report, nil for a scenario without sends.
	Check *check.Report `json:"check,omitempty"`

	// State maps actor name to its final state fields.
	State map[string]map[string]string `json:"state,omitempty"`

	// Bits is the final bit store rendered as 0s and 1s.
	Bits string `json:"bits"`

	// RunID is the id the run was persisted under.
	RunID string `json:"run_id"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// add appends an event with the next seq.
func (r *Result) add(kind, subject, detail string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		Kind:    kind,
		Subject: subject,
		Detail:  detail,
	})
}
