package lower

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/rio/internal/ir"
)

// Error codes (E200-E299).
const (
	ErrEmptyTarget      = "E200" // send has no target
	ErrEmptySelector    = "E201" // send has no selector
	ErrUnknownSelector  = "E202" // R-term selector has no opcode
	ErrUntaggedDTerm    = "E203" // strict mode: D-term send without a tag
	ErrInheritanceCycle = "E204" // child/parent declarations form a cycle
	ErrMultipleParents  = "E205" // a child declares more than one parent
	ErrSelfInheritance  = "E206" // a name inherits from itself
	ErrEmptyInheritName = "E207" // child or parent name is empty
)

// Error is one lowering problem.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (e Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s", e.Code, e.Line, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Errors is the full list of problems found by Lower.
type Errors []Error

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// SendOp is one message send from the surface language.
type SendOp struct {
	Target   string   `json:"target" yaml:"target"`
	Selector string   `json:"selector" yaml:"selector"`
	Args     []string `json:"args,omitempty" yaml:"args,omitempty"`
	Tag      string   `json:"tag,omitempty" yaml:"tag,omitempty"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
}

// Stats counts what Lower produced.
type Stats struct {
	RTerm       int `json:"r_term"`
	DTerm       int `json:"d_term"`
	Inheritance int `json:"inheritance_edges"`
}

// Result is the output of Lower.
type Result struct {
	Program *ir.Program
	Stats   Stats
	Paths   []string
}

// Options controls lowering.
type Options struct {
	// Strict requires every D-term send to carry an explicit tag.
	Strict bool
	// Origin is recorded in each cell's provenance.
	Origin string
	Logger *slog.Logger
}

// Lower validates every send and inheritance declaration and, if all are
// valid, builds the program. It reports every problem it finds rather than
// stopping at the first.
func Lower(name string, sends []SendOp, inherits []Inherit, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origin := opts.Origin
	if origin == "" {
		origin = name
	}

	errs := validateInherits(inherits)
	g := buildInheritGraph(inherits)

	prog := ir.NewProgram(name)
	res := &Result{Program: prog, Stats: Stats{Inheritance: len(inherits)}}

	for _, op := range sends {
		cell, ok := lowerSend(op, opts.Strict, &errs)
		if !ok {
			continue
		}
		path := canonicalTarget(op.Target, g) + "." + op.Selector
		cell.Provenance = ir.Provenance{Origin: origin, Line: op.Line, Path: path}
		if _, err := prog.Append(cell); err != nil {
			return nil, fmt.Errorf("lower %s: %w", name, err)
		}
		if cell.Reversible {
			res.Stats.RTerm++
		} else {
			res.Stats.DTerm++
		}
		res.Paths = append(res.Paths, path)
		logger.Debug("lowered send", "path", path, "opcode", cell.Opcode, "reversible", cell.Reversible)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	logger.Info("lowered program", "name", name, "cells", prog.Len(),
		"r_term", res.Stats.RTerm, "d_term", res.Stats.DTerm)
	return res, nil
}

func lowerSend(op SendOp, strict bool, errs *Errors) (*ir.Cell, bool) {
	if op.Target == "" {
		*errs = append(*errs, Error{Code: ErrEmptyTarget, Message: "send has no target", Line: op.Line})
		return nil, false
	}
	if op.Selector == "" {
		*errs = append(*errs, Error{Code: ErrEmptySelector, Message: fmt.Sprintf("send to %s has no selector", op.Target), Line: op.Line})
		return nil, false
	}

	term, tagged := Classify(op)
	opcode, known := OpcodeFor(op.Selector)

	if term == DTerm {
		if strict && !tagged {
			*errs = append(*errs, Error{
				Code:    ErrUntaggedDTerm,
				Message: fmt.Sprintf("%s.%s is irreversible and must be tagged", op.Target, op.Selector),
				Line:    op.Line,
			})
			return nil, false
		}
		return ir.NewDTermCell(opcode, op.Args...), true
	}

	if !known {
		*errs = append(*errs, Error{
			Code:    ErrUnknownSelector,
			Message: fmt.Sprintf("%s.%s: no reversible operation %q", op.Target, op.Selector, op.Selector),
			Line:    op.Line,
		})
		return nil, false
	}
	return ir.NewCell(opcode, op.Args...), true
}

func validateInherits(decls []Inherit) Errors {
	var errs Errors
	parents := make(map[string]string)
	for _, d := range decls {
		switch {
		case d.Child == "" || d.Parent == "":
			errs = append(errs, Error{Code: ErrEmptyInheritName, Message: fmt.Sprintf("inheritance %q -> %q needs both names", d.Child, d.Parent)})
			continue
		case d.Child == d.Parent:
			errs = append(errs, Error{Code: ErrSelfInheritance, Message: fmt.Sprintf("%s inherits from itself", d.Child)})
			continue
		}
		if p, ok := parents[d.Child]; ok && p != d.Parent {
			errs = append(errs, Error{Code: ErrMultipleParents, Message: fmt.Sprintf("%s inherits from both %s and %s", d.Child, p, d.Parent)})
			continue
		}
		parents[d.Child] = d.Parent
	}
	for _, c := range FindCycles(decls) {
		if len(c) == 2 {
			continue // self-inheritance, already reported
		}
		errs = append(errs, Error{Code: ErrInheritanceCycle, Message: formatCycle(c)})
	}
	return errs
}
