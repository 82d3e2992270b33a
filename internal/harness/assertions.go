package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Kind, event.Subject, event.Detail)
		}
	}
	return buf.String()
}

// matches reports whether event has the assertion's subject and, when set,
// its kind.
func matches(event TraceEvent, kind, subject string) bool {
	if kind != "" && event.Kind != kind {
		return false
	}
	return event.Subject == subject
}

// assertTraceContains checks that some event matches kind and subject and
// contains the expected detail substring.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matches(event, a.Kind, a.Subject) && strings.Contains(event.Detail, a.Detail) {
			return nil
		}
	}
	expected := fmt.Sprintf("%s event %s", kindOrAny(a.Kind), a.Subject)
	if a.Detail != "" {
		expected += fmt.Sprintf(" with detail containing %q", a.Detail)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that subjects first appear in the given order.
// Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		for _, want := range a.Subjects {
			if matches(event, a.Kind, want) && positions[want] == 0 {
				positions[want] = event.Seq
			}
		}
	}

	for _, subject := range a.Subjects {
		if positions[subject] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all subjects present: %v", a.Subjects),
				Actual:   fmt.Sprintf("missing subject: %s", subject),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Subjects); i++ {
		prev, curr := a.Subjects[i-1], a.Subjects[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("subjects in order: %v", a.Subjects),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, a.Kind, a.Subject) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s event %s", a.Count, kindOrAny(a.Kind), a.Subject),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks an actor state field or a bit.
func assertFinalState(result *Result, a Assertion) error {
	if a.Bit != nil {
		i := *a.Bit
		if i < 0 || i >= len(result.Bits) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("bit %d = %s", i, a.Value),
				Actual:   fmt.Sprintf("bit %d outside %d-bit store", i, len(result.Bits)),
			}
		}
		if got := string(result.Bits[i]); got != a.Value {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("bit %d = %s", i, a.Value),
				Actual:   fmt.Sprintf("bit %d = %s (bits %s)", i, got, result.Bits),
			}
		}
		return nil
	}

	fields, ok := result.State[a.Actor]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("actor %s to exist", a.Actor),
			Actual:   "actor not spawned",
		}
	}
	got, ok := fields[a.Field]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s.%s = %s", a.Actor, a.Field, a.Value),
			Actual:   fmt.Sprintf("field %q not present", a.Field),
		}
	}
	if got != a.Value {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s.%s = %s", a.Actor, a.Field, a.Value),
			Actual:   fmt.Sprintf("%s.%s = %s", a.Actor, a.Field, got),
		}
	}
	return nil
}

// assertConsistent checks the consistency checker's verdict.
func assertConsistent(result *Result, a Assertion) error {
	want := *a.Consistent
	if result.Check == nil {
		return &AssertionError{
			Type:     AssertConsistent,
			Expected: fmt.Sprintf("consistent = %t", want),
			Actual:   "no program was checked",
		}
	}
	if got := result.Check.IsConsistent(); got != want {
		first := result.Check.First()
		return &AssertionError{
			Type:     AssertConsistent,
			Expected: fmt.Sprintf("consistent = %t", want),
			Actual:   fmt.Sprintf("consistent = %t (%s)", got, first.Message),
		}
	}
	return nil
}

func kindOrAny(kind string) string {
	if kind == "" {
		return "any"
	}
	return kind
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertConsistent:
			if assertion.Consistent == nil {
				err = fmt.Errorf("assertion[%d]: consistent requires a value", i)
			} else {
				err = assertConsistent(result, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
