// Package actor is the coordination layer: named actors with text state,
// FIFO mailboxes and event handlers written in the handler language of
// package script.
//
// Scheduling is cooperative. Nothing runs until the caller invokes Tick,
// and each Tick lets every actor, in spawn order, handle at most one
// message. Delivery is therefore FIFO per actor and round-robin across
// actors.
//
// Sends can be journaled as D-term send cells on an ir.Program, and the
// whole runtime can be checkpointed and rolled back.
package actor
