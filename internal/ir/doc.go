// Package ir defines the homoiconic instruction representation.
//
// Every operation the runtime executes is a Cell: a plain record holding an
// opcode, its operands, reversibility metadata, execution state and
// provenance. Cells are both the executable form and the inspectable data
// form of a program, so the same value is stepped by the runtime, checked by
// the consistency checker, persisted by the store and printed by the CLI.
//
// A Program is an append-only, ordered sequence of Cells with stable ids, a
// program counter and a list of checkpoints. Programs serialize to a
// canonical JSON Document and decode back into live Programs.
//
// Values carried by cells (results, effect payloads) use the sealed IRValue
// interface. Floats are not representable; arithmetic is integer-only.
package ir
