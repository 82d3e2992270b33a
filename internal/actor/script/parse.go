package script

import (
	"strings"
	"unicode"
)

type line struct {
	num    int
	indent int
	text   string
}

// Parse parses a handler body. Blank lines and // comments are skipped.
func Parse(src string) (*Program, error) {
	var lines []line
	for i, raw := range strings.Split(src, "\n") {
		raw = strings.TrimRight(raw, " \t\r")
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}
		lines = append(lines, line{num: i + 1, indent: indentOf(raw), text: text})
	}

	p := &parser{lines: lines}
	body, err := p.block(-1)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lines) {
		l := p.lines[p.pos]
		return nil, &ParseError{Line: l.num, Message: "unexpected indentation"}
	}
	return &Program{Source: src, Body: body}, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or with known-good bodies.
func MustParse(src string) *Program {
	p, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return p
}

func indentOf(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' {
			break
		}
		n++
	}
	return n
}

type parser struct {
	lines []line
	pos   int
}

// block parses statements indented deeper than parent. The first line
// fixes the block's indentation; a shallower line ends the block.
func (p *parser) block(parent int) ([]Stmt, error) {
	if p.pos >= len(p.lines) || p.lines[p.pos].indent <= parent {
		return nil, nil
	}
	indent := p.lines[p.pos].indent

	var body []Stmt
	for p.pos < len(p.lines) {
		l := p.lines[p.pos]
		if l.indent < indent {
			break
		}
		if l.indent > indent {
			return nil, &ParseError{Line: l.num, Message: "unexpected indentation"}
		}
		p.pos++
		s, err := p.statement(l)
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	return body, nil
}

func (p *parser) statement(l line) (Stmt, error) {
	text := l.text
	switch {
	case hasKeyword(text, "if"):
		cond, err := CompileCond(strings.TrimSpace(text[len("if"):]))
		if err != nil {
			return nil, &ParseError{Line: l.num, Message: err.Error()}
		}
		body, err := p.block(l.indent)
		if err != nil {
			return nil, err
		}
		return &If{Line: l.num, Cond: cond, Body: body}, nil

	case hasKeyword(text, "while"):
		cond, err := CompileCond(strings.TrimSpace(text[len("while"):]))
		if err != nil {
			return nil, &ParseError{Line: l.num, Message: err.Error()}
		}
		body, err := p.block(l.indent)
		if err != nil {
			return nil, err
		}
		return &While{Line: l.num, Cond: cond, Body: body}, nil

	case hasKeyword(text, "for"):
		f, err := parseFor(l)
		if err != nil {
			return nil, err
		}
		body, err := p.block(l.indent)
		if err != nil {
			return nil, err
		}
		f.Body = body
		return f, nil
	}
	return simpleStatement(l)
}

// simpleStatement parses the single-line forms.
func simpleStatement(l line) (Stmt, error) {
	text := l.text

	if rest, ok := cutKeyword(text, "self"); ok && strings.HasPrefix(rest, "->") {
		msg := strings.TrimSpace(rest[2:])
		if m, ok := cutKeyword(msg, "log"); ok {
			return &Log{Line: l.num, Message: CompileExpr(m)}, nil
		}
		return newSend(l, "self", msg)
	}

	if target, msg, ok := strings.Cut(text, "->"); ok && startsUpper(text) {
		target = strings.TrimSpace(target)
		if isIdent(target) {
			return newSend(l, target, strings.TrimSpace(msg))
		}
	}

	if rest, ok := cutKeyword(text, "let"); ok {
		target, value, ok := splitAssignment(rest)
		if !ok || !isIdent(target) {
			return nil, &ParseError{Line: l.num, Message: "let needs a name and a value"}
		}
		return &Assign{Line: l.num, Target: target, Let: true, Value: CompileExpr(value)}, nil
	}

	if m, ok := cutKeyword(text, "log"); ok {
		return &Log{Line: l.num, Message: CompileExpr(m)}, nil
	}

	if target, value, ok := splitAssignment(text); ok && isTarget(target) {
		return &Assign{Line: l.num, Target: target, Value: CompileExpr(value)}, nil
	}

	return nil, &ParseError{Line: l.num, Message: "unrecognized statement " + quote(text)}
}

func newSend(l line, target, msg string) (Stmt, error) {
	event, args, _ := strings.Cut(msg, " ")
	if !isIdent(event) {
		return nil, &ParseError{Line: l.num, Message: "send needs an event name"}
	}
	s := &Send{Line: l.num, Target: target, Event: event}
	if args = strings.TrimSpace(args); args != "" {
		s.Payload = CompileExpr(args)
	}
	return s, nil
}

// parseFor parses "for <var> in <start> to <end>".
func parseFor(l line) (*For, error) {
	rest := strings.TrimSpace(l.text[len("for"):])
	name, bounds, ok := strings.Cut(rest, " in ")
	if !ok {
		return nil, &ParseError{Line: l.num, Message: "for needs 'in'"}
	}
	start, end, ok := strings.Cut(bounds, " to ")
	if !ok {
		return nil, &ParseError{Line: l.num, Message: "for needs 'to'"}
	}
	name = strings.TrimSpace(name)
	if !isIdent(name) {
		return nil, &ParseError{Line: l.num, Message: "for needs a loop variable"}
	}
	return &For{
		Line:  l.num,
		Var:   name,
		Start: CompileExpr(strings.TrimSpace(start)),
		End:   CompileExpr(strings.TrimSpace(end)),
	}, nil
}

// splitAssignment splits "target -> value" or "target = value". A lone
// "=" is an assignment; "==", "<=", ">=" and "!=" are not.
func splitAssignment(s string) (target, value string, ok bool) {
	if t, v, found := strings.Cut(s, "->"); found {
		return strings.TrimSpace(t), strings.TrimSpace(v), true
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '=' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '=' {
			return "", "", false
		}
		if i > 0 && strings.ContainsRune("=<>!", rune(s[i-1])) {
			return "", "", false
		}
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
	}
	return "", "", false
}

// hasKeyword reports whether s starts with kw followed by a space.
func hasKeyword(s, kw string) bool {
	_, ok := cutKeyword(s, kw)
	return ok
}

func cutKeyword(s, kw string) (string, bool) {
	if !strings.HasPrefix(s, kw) || len(s) == len(kw) {
		return "", false
	}
	next := rune(s[len(kw)])
	if !unicode.IsSpace(next) {
		return "", false
	}
	return strings.TrimSpace(s[len(kw):]), true
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

func isTarget(s string) bool {
	if key, ok := strings.CutPrefix(s, "state."); ok {
		return isIdent(key)
	}
	return isIdent(s)
}

func quote(s string) string { return "\"" + s + "\"" }
