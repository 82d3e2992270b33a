// Package metrics exposes Prometheus instrumentation for the runtimes.
//
// Each Recorder owns its own registry so independent runtimes (and tests)
// never share counters. All methods are safe on a nil *Recorder, which
// records nothing.
package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "rio"

// Recorder holds the counters for one process or test.
type Recorder struct {
	registry *prometheus.Registry

	steps     prometheus.Counter
	undos     prometheus.Counter
	rollbacks prometheus.Counter
	effects   *prometheus.CounterVec
	ticks     prometheus.Counter
	messages  *prometheus.CounterVec
	loopCaps  prometheus.Counter
	checks    *prometheus.CounterVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		steps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hrir",
			Name:      "steps_total",
			Help:      "Cells stepped by the runtime.",
		}),
		undos: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hrir",
			Name:      "undos_total",
			Help:      "Cells undone by the runtime.",
		}),
		rollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hrir",
			Name:      "rollbacks_total",
			Help:      "Rollbacks to a checkpoint.",
		}),
		effects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hrir",
			Name:      "effects_total",
			Help:      "Irreversible side effects by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actor",
			Name:      "ticks_total",
			Help:      "Scheduling passes over the actor set.",
		}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actor",
			Name:      "messages_total",
			Help:      "Messages by outcome: sent, handled, unhandled, undeliverable.",
		}, []string{"outcome"}),
		loopCaps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actor",
			Name:      "loop_cap_hits_total",
			Help:      "While loops stopped at the iteration cap.",
		}),
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "check",
			Name:      "runs_total",
			Help:      "Consistency checks by kind and verdict.",
		}, []string{"kind", "verdict"}),
	}
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Step records one executed cell.
func (r *Recorder) Step() {
	if r != nil {
		r.steps.Inc()
	}
}

// Undo records one undone cell.
func (r *Recorder) Undo() {
	if r != nil {
		r.undos.Inc()
	}
}

// Rollback records one rollback.
func (r *Recorder) Rollback() {
	if r != nil {
		r.rollbacks.Inc()
	}
}

// Effect records an irreversible side effect.
func (r *Recorder) Effect(operation string, ok bool) {
	if r != nil {
		r.effects.WithLabelValues(operation, outcome(ok)).Inc()
	}
}

// Tick records one scheduling pass.
func (r *Recorder) Tick() {
	if r != nil {
		r.ticks.Inc()
	}
}

// Message outcomes.
const (
	MessageSent          = "sent"
	MessageHandled       = "handled"
	MessageUnhandled     = "unhandled"
	MessageUndeliverable = "undeliverable"
)

// Message records a message outcome.
func (r *Recorder) Message(outcome string) {
	if r != nil {
		r.messages.WithLabelValues(outcome).Inc()
	}
}

// LoopCap records a while loop stopped at its iteration cap.
func (r *Recorder) LoopCap() {
	if r != nil {
		r.loopCaps.Inc()
	}
}

// Check records a consistency check verdict.
func (r *Recorder) Check(kind string, consistent bool) {
	if r != nil {
		verdict := "consistent"
		if !consistent {
			verdict = "inconsistent"
		}
		r.checks.WithLabelValues(kind, verdict).Inc()
	}
}

// WriteText writes every gathered metric family in the Prometheus text
// exposition format.
func (r *Recorder) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
