// Package bits implements the reversible bit substrate.
//
// A Store is a fixed-width array of bit cells mutated only through four gate
// primitives: Toggle2, Toggle1, Flip and Swap. Each primitive is an
// involution, so applying the same gate with the same operands twice is the
// identity. That property is the only undo mechanism the substrate offers:
// UndoLast re-applies the most recent gate from the execution log.
//
// Checkpoints snapshot the full bit state together with the execution log
// position. A store may hold any number of checkpoints; Restore rewinds the
// bits and the log to the recorded position.
//
// A Store is owned by exactly one runtime and is not safe for concurrent use.
package bits
