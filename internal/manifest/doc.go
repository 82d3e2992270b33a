// Package manifest loads rio machine manifests written in CUE.
//
// A manifest describes one run: the bit machine, a program given as
// classified send operations, optional actor definitions with the messages
// to inject, and the side effects a consistency check should expect.
//
//	machine: {bits: 8, ancillas: 2, seed: [0]}
//	program: {
//		name: "calc"
//		sends: [
//			{target: "Calc", selector: "add", args: ["5", "3"]},
//			{target: "Transcript", selector: "output", args: ["done"], tag: "io"},
//		]
//	}
//	actors: {sources: ["counter.actor"], ticks: 3, sends: [{actor: "Counter", event: "increment"}]}
//	expect: [{operation: "print", args: ["done"]}]
//
// Every manifest is unified with an embedded CUE schema that supplies
// defaults and rejects unknown fields, then decoded into Go structs and
// checked with go-playground/validator for cross-field constraints.
package manifest
