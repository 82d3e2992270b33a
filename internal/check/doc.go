// Package check validates programs.
//
// ValidateStructure inspects a Program without running it. CheckReplay runs
// a fresh copy of the Program and compares each irreversible cell's outcome
// against an ordered list of expected side effects, while proving every
// reversible cell can step, undo and step again. Both stop at the first
// failure.
package check
