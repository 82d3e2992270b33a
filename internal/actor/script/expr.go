package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/rio/internal/ir"
)

var (
	errUnknownName = errors.New("unknown name")
	errNotNumber   = errors.New("operand is not a number")
	errDivByZero   = errors.New("division by zero")
	errOverflow    = errors.New("integer overflow")
)

// Lookup resolves a name during evaluation. "state.x" names are passed
// through whole.
type Lookup func(name string) (string, bool)

// Expr is a compiled expression. When the source does not parse, or a
// name does not resolve, or the arithmetic fails, the expression
// evaluates to its own source text.
type Expr struct {
	Raw  string
	root node
}

// CompileExpr compiles src. It never fails; see Expr.
func CompileExpr(src string) *Expr {
	src = strings.TrimSpace(src)
	e := &Expr{Raw: src}
	toks, err := tokenize(src)
	if err != nil || len(toks) == 0 {
		return e
	}
	p := &exprParser{toks: toks}
	root, err := p.expr()
	if err == nil && p.pos == len(toks) {
		e.root = root
	}
	return e
}

// Eval evaluates e. ok is false when the raw text was returned because
// evaluation failed.
func (e *Expr) Eval(lookup Lookup) (string, bool) {
	if e.root == nil {
		return e.Raw, false
	}
	v, err := e.root.eval(lookup)
	if err != nil {
		return e.Raw, false
	}
	return v.String(), true
}

// String returns the source text.
func (e *Expr) String() string { return e.Raw }

// value is an evaluated operand: a string, an exact integer or a float.
type value struct {
	str   string
	i     int64
	f     float64
	isNum bool
	isInt bool
}

func intValue(n int64) value { return value{i: n, isNum: true, isInt: true} }

func floatValue(f float64) value { return value{f: f, isNum: true} }

// float returns the numeric value as a float64; non-numbers are 0.
func (v value) float() float64 {
	if v.isInt {
		return float64(v.i)
	}
	return v.f
}

func (v value) String() string {
	switch {
	case v.isInt:
		return strconv.FormatInt(v.i, 10)
	case v.isNum:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	}
	return v.str
}

// parseValue treats numeric-looking text as a number. Integers that fit in
// an int64 stay exact.
func parseValue(s string) value {
	t := strings.TrimSpace(s)
	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		return intValue(n)
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !strings.ContainsAny(t, "xXpPinIN") {
		return floatValue(f)
	}
	return value{str: s}
}

type node interface {
	eval(Lookup) (value, error)
}

type litNode struct{ v value }

func (n litNode) eval(Lookup) (value, error) { return n.v, nil }

type nameNode struct{ name string }

func (n nameNode) eval(lookup Lookup) (value, error) {
	s, ok := lookup(n.name)
	if !ok {
		return value{}, fmt.Errorf("%w: %s", errUnknownName, n.name)
	}
	return parseValue(s), nil
}

type negNode struct{ x node }

func (n negNode) eval(lookup Lookup) (value, error) {
	v, err := n.x.eval(lookup)
	if err != nil {
		return value{}, err
	}
	switch {
	case v.isInt:
		n, ok := ir.SubInt(0, v.i)
		if !ok {
			return value{}, errOverflow
		}
		return intValue(n), nil
	case v.isNum:
		return floatValue(-v.f), nil
	}
	return value{}, errNotNumber
}

type binNode struct {
	op   byte
	l, r node
}

func (n binNode) eval(lookup Lookup) (value, error) {
	l, err := n.l.eval(lookup)
	if err != nil {
		return value{}, err
	}
	r, err := n.r.eval(lookup)
	if err != nil {
		return value{}, err
	}
	if !l.isNum || !r.isNum {
		if n.op == '+' {
			return value{str: l.String() + r.String()}, nil
		}
		return value{}, errNotNumber
	}

	if l.isInt && r.isInt {
		return intArith(n.op, l.i, r.i)
	}
	a, b := l.float(), r.float()
	switch n.op {
	case '+':
		return floatValue(a + b), nil
	case '-':
		return floatValue(a - b), nil
	case '*':
		return floatValue(a * b), nil
	}
	if b == 0 {
		return value{}, errDivByZero
	}
	return floatValue(a / b), nil
}

func intArith(op byte, a, b int64) (value, error) {
	var (
		out int64
		ok  bool
	)
	switch op {
	case '+':
		out, ok = ir.AddInt(a, b)
	case '-':
		out, ok = ir.SubInt(a, b)
	case '*':
		out, ok = ir.MulInt(a, b)
	default:
		if b == 0 {
			return value{}, errDivByZero
		}
		out, ok = ir.DivInt(a, b)
	}
	if !ok {
		return value{}, errOverflow
	}
	return intValue(out), nil
}

type tokKind int

const (
	tokNum tokKind = iota
	tokStr
	tokName
	tokOp
)

type token struct {
	kind tokKind
	text string
}

func tokenize(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.IndexByte("+-*/()", c) >= 0:
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, token{tokStr, src[i+1 : i+1+end]})
			i += end + 2
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNum, src[i:j]})
			i = j
		case c == '_' || unicode.IsLetter(rune(c)):
			j := i
			for j < len(src) && (src[j] == '_' || src[j] == '.' || unicode.IsLetter(rune(src[j])) || src[j] >= '0' && src[j] <= '9') {
				j++
			}
			toks = append(toks, token{tokName, src[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	return toks, nil
}

type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) peekOp(ops string) (byte, bool) {
	if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokOp {
		return 0, false
	}
	c := p.toks[p.pos].text[0]
	return c, strings.IndexByte(ops, c) >= 0
}

// expr := term (('+' | '-') term)*
func (p *exprParser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("+-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
}

// term := unary (('*' | '/') unary)*
func (p *exprParser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("*/")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
}

// unary := '-' unary | primary
func (p *exprParser) unary() (node, error) {
	if _, ok := p.peekOp("-"); ok {
		p.pos++
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	}
	return p.primary()
}

// primary := number | string | name | '(' expr ')'
func (p *exprParser) primary() (node, error) {
	if p.pos >= len(p.toks) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	t := p.toks[p.pos]
	p.pos++
	switch t.kind {
	case tokNum:
		v := parseValue(t.text)
		if !v.isNum {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return litNode{v: v}, nil
	case tokStr:
		return litNode{v: value{str: t.text}}, nil
	case tokName:
		if t.text == "true" || t.text == "false" {
			return litNode{v: value{str: t.text}}, nil
		}
		return nameNode{name: t.text}, nil
	case tokOp:
		if t.text == "(" {
			inner, err := p.expr()
			if err != nil {
				return nil, err
			}
			if op, ok := p.peekOp(")"); !ok || op != ')' {
				return nil, fmt.Errorf("missing )")
			}
			p.pos++
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected %q", t.text)
}
