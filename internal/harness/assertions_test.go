package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rio/internal/check"
)

func sampleResult() *Result {
	r := NewResult()
	r.add(KindCell, "Calc.add", "add(1, 2) = 3")
	r.add(KindEffect, "print", "hi -> ok")
	r.add(KindMessage, "Counter.increment", "{}")
	r.add(KindLog, "Counter", "1")
	r.add(KindMessage, "Counter.increment", "{}")
	r.State["Counter"] = map[string]string{"count": "1"}
	r.Bits = "0100"
	return r
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"contains", Assertion{Type: AssertTraceContains, Kind: KindEffect, Subject: "print", Detail: "ok"}, ""},
		{"contains any kind", Assertion{Type: AssertTraceContains, Subject: "Counter"}, ""},
		{"contains wrong detail", Assertion{Type: AssertTraceContains, Subject: "print", Detail: "failed"}, `detail containing "failed"`},
		{"contains wrong kind", Assertion{Type: AssertTraceContains, Kind: KindLog, Subject: "print"}, "log event print"},
		{"order", Assertion{Type: AssertTraceOrder, Subjects: []string{"Calc.add", "print", "Counter"}}, ""},
		{"order reversed", Assertion{Type: AssertTraceOrder, Subjects: []string{"Counter", "Calc.add"}}, "should be before"},
		{"order missing", Assertion{Type: AssertTraceOrder, Subjects: []string{"Calc.add", "Ghost"}}, "missing subject: Ghost"},
		{"count", Assertion{Type: AssertTraceCount, Kind: KindMessage, Subject: "Counter.increment", Count: 2}, ""},
		{"count zero", Assertion{Type: AssertTraceCount, Subject: "Nope", Count: 0}, ""},
		{"count wrong", Assertion{Type: AssertTraceCount, Subject: "Counter.increment", Count: 1}, "2 occurrences"},
		{"state", Assertion{Type: AssertFinalState, Actor: "Counter", Field: "count", Value: "1"}, ""},
		{"state wrong value", Assertion{Type: AssertFinalState, Actor: "Counter", Field: "count", Value: "5"}, "Counter.count = 1"},
		{"state missing field", Assertion{Type: AssertFinalState, Actor: "Counter", Field: "total", Value: "1"}, `field "total" not present`},
		{"state missing actor", Assertion{Type: AssertFinalState, Actor: "Ghost", Field: "x"}, "actor not spawned"},
		{"bit", Assertion{Type: AssertFinalState, Bit: intPtr(1), Value: "1"}, ""},
		{"bit wrong", Assertion{Type: AssertFinalState, Bit: intPtr(0), Value: "1"}, "bit 0 = 0"},
		{"bit out of range", Assertion{Type: AssertFinalState, Bit: intPtr(9), Value: "1"}, "outside 4-bit store"},
		{"consistent without check", Assertion{Type: AssertConsistent, Consistent: boolPtr(true)}, "no program was checked"},
		{"consistent without value", Assertion{Type: AssertConsistent}, "requires a value"},
		{"unknown", Assertion{Type: "vibes"}, `unknown assertion type "vibes"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestEvaluateAssertions_Consistent(t *testing.T) {
	r := sampleResult()
	r.Check = &check.Report{
		Structural: check.Result{IsConsistent: true},
		Behavioral: &check.Result{IsConsistent: false, Message: check.MsgSideEffectMismatch},
	}

	assert.Empty(t, EvaluateAssertions(r, []Assertion{{Type: AssertConsistent, Consistent: boolPtr(false)}}))

	errs := EvaluateAssertions(r, []Assertion{{Type: AssertConsistent, Consistent: boolPtr(true)}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], check.MsgSideEffectMismatch)
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1",
		Actual:   "2",
		Trace:    sampleResult().Trace,
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "[1] cell Calc.add add(1, 2) = 3")
	assert.Contains(t, msg, "[5] message Counter.increment {}")
}

func TestMarshalTrace(t *testing.T) {
	r := NewResult()
	r.add(KindLog, "A", "")
	r.add(KindEffect, "print", "x -> ok")

	got, err := MarshalTrace("t", r.Trace)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"t","trace":[{"kind":"log","seq":1,"subject":"A"},{"detail":"x -> ok","kind":"effect","seq":2,"subject":"print"}]}`,
		string(got))
}
