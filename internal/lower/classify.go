package lower

import "github.com/roach88/rio/internal/ir"

// Term is the classification of a send.
type Term int

const (
	// RTerm sends must be exactly reversible.
	RTerm Term = iota + 1
	// DTerm sends are dissipative: they cross into the irreversible world.
	DTerm
)

func (t Term) String() string {
	switch t {
	case RTerm:
		return "R"
	case DTerm:
		return "D"
	}
	return "?"
}

// Tags a send may carry to override the allow-list.
const (
	TagReversible   = "reversible"
	TagIrreversible = "irreversible"
	TagIO           = "io"
)

var (
	dissipativeTargets   = map[string]bool{"io": true, "file": true, "network": true, "system": true}
	dissipativeSelectors = map[string]bool{"fork": true, "spawn": true, "kill": true, "exit": true}
)

// Classify returns the term of op. An explicit tag wins; otherwise sends to
// io, file, network or system, and the fork, spawn, kill and exit
// selectors, are D-term. tagged reports whether a tag decided.
func Classify(op SendOp) (term Term, tagged bool) {
	switch op.Tag {
	case TagIrreversible, TagIO:
		return DTerm, true
	case TagReversible:
		return RTerm, true
	}
	if dissipativeTargets[op.Target] || dissipativeSelectors[op.Selector] {
		return DTerm, false
	}
	return RTerm, false
}

// selectorOpcodes maps selectors that are not themselves opcode names.
var selectorOpcodes = map[string]ir.Opcode{
	"output": ir.OpPrint,
	"write":  ir.OpPrint,
	"log":    ir.OpPrint,
	"input":  ir.OpRead,
	"plus":   ir.OpAdd,
	"minus":  ir.OpSubtract,
	"times":  ir.OpMultiply,
	"not":    ir.OpFlip,
	"cnot":   ir.OpToggle1,
	"ccnot":  ir.OpToggle2,
}

var knownOpcodes = map[ir.Opcode]bool{
	ir.OpAdd: true, ir.OpSubtract: true, ir.OpMultiply: true, ir.OpDivide: true,
	ir.OpEqual: true, ir.OpLess: true, ir.OpGreater: true,
	ir.OpJump: true, ir.OpJumpIf: true, ir.OpPrint: true, ir.OpRead: true,
	ir.OpStore: true, ir.OpLoad: true, ir.OpSend: true,
	ir.OpToggle2: true, ir.OpToggle1: true, ir.OpFlip: true, ir.OpSwap: true,
	ir.OpAnd: true, ir.OpOr: true, ir.OpXor: true, ir.OpNand: true, ir.OpNor: true,
}

// OpcodeFor maps a selector to an opcode. ok is false for selectors the
// runtime has no built-in meaning for.
func OpcodeFor(selector string) (ir.Opcode, bool) {
	if op, ok := selectorOpcodes[selector]; ok {
		return op, true
	}
	op := ir.Opcode(selector)
	return op, knownOpcodes[op]
}
