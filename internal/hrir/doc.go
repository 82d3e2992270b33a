// Package hrir steps, undoes, checkpoints and rolls back a Program.
//
// A Runtime owns one Program and one bit store. Cells execute strictly in
// index order:
//
//	Idle      pc == 0
//	Running   0 < pc < N
//	Complete  pc == N
//
// Step executes cell[pc] and advances; Undo moves back one cell and clears
// its execution state. Gate cells are self-inverse, so undoing one
// re-applies the same gate to the store. Dissipative and effectful cells
// cannot be unwound at the substrate level; Rollback therefore finishes by
// restoring the checkpoint's full bit snapshot.
//
// Irreversible cells (D-terms) are dispatched to effect handlers and every
// attempt is recorded as an Effect. The consistency checker replays those
// records against declared expectations.
//
// Failure never mutates: a Step that errors leaves the pc, the cell and the
// store untouched.
package hrir
