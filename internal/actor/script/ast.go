// Package script parses and interprets actor handler bodies.
//
// A body is a small indentation-scoped language:
//
//	let total -> 0
//	for i in 1 to state.limit
//	    total -> total + i
//	if total > 10
//	    log "big"
//	state.sum = total
//	Printer -> show
//
// Parse turns a body into a tree of statements (Assign, Log, If, While,
// For, Send). Expressions and conditions are compiled once at parse time.
// An Interpreter executes the tree against a State and a Host that
// delivers sends and collects log output.
package script

import "fmt"

// Stmt is a parsed handler statement.
type Stmt interface {
	stmt()
	// Pos returns the 1-based source line.
	Pos() int
}

// Assign stores the value of Expr. Targets prefixed with "state." write
// actor state; anything else writes a handler-local variable.
type Assign struct {
	Line   int
	Target string
	Let    bool
	Value  *Expr
}

// Log emits the value of Message.
type Log struct {
	Line    int
	Message *Expr
}

// If runs Body once when Cond holds. There is no else branch.
type If struct {
	Line int
	Cond *Cond
	Body []Stmt
}

// While runs Body while Cond holds, up to the interpreter's iteration cap.
type While struct {
	Line int
	Cond *Cond
	Body []Stmt
}

// For binds Var to each integer from Start to End inclusive.
type For struct {
	Line  int
	Var   string
	Start *Expr
	End   *Expr
	Body  []Stmt
}

// Send enqueues Event on Target. Target "self" is the running actor.
// A nil Payload forwards the message currently being handled.
type Send struct {
	Line    int
	Target  string
	Event   string
	Payload *Expr
}

func (*Assign) stmt() {}
func (*Log) stmt()    {}
func (*If) stmt()     {}
func (*While) stmt()  {}
func (*For) stmt()    {}
func (*Send) stmt()   {}

func (s *Assign) Pos() int { return s.Line }
func (s *Log) Pos() int    { return s.Line }
func (s *If) Pos() int     { return s.Line }
func (s *While) Pos() int  { return s.Line }
func (s *For) Pos() int    { return s.Line }
func (s *Send) Pos() int   { return s.Line }

// Program is a parsed handler body.
type Program struct {
	Source string
	Body   []Stmt
}

// ParseError reports a malformed statement.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}
