// Package harness runs rio conformance scenarios.
//
// A scenario is a YAML file describing a machine, a program given as send
// operations, optional actors with the messages to inject, the side effects
// a consistency check should expect, and assertions over the resulting
// trace and final state:
//
//	name: counter
//	description: increments twice and reports
//	bits: 4
//	sends:
//	  - {target: Calc, selector: add, args: ["2", "2"]}
//	  - {target: Transcript, selector: output, args: [done], tag: io}
//	actors: |
//	  actor Counter
//	    state has
//	      count -> 0
//	    handlers
//	      on increment
//	        state.count -> state.count + 1
//	messages:
//	  - {actor: Counter, event: increment}
//	ticks: 2
//	expect:
//	  - {operation: print, args: [done]}
//	assertions:
//	  - {type: final_state, actor: Counter, field: count, value: "1"}
//	  - {type: consistent, consistent: true}
//
// # Execution
//
// Each scenario runs against fresh state: a new bit store, a deterministic
// clock starting at testutil.Epoch and an in-memory SQLite store the run is
// persisted to. The program is lowered, executed to completion, then handed
// to the consistency checker. Actors are spawned afterwards and ticked.
//
// # Trace
//
// Every observable step becomes a TraceEvent with a scenario-wide seq:
// executed cells, side effects, actor messages, log lines and diagnostics.
// The trace is what assertions inspect and what golden files record.
//
// # Golden files
//
// RunWithGolden compares the canonical JSON of a trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
