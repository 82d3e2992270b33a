package actor

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Definition is a parsed actor declaration.
type Definition struct {
	Name     string
	Role     string
	State    []Field
	Handlers []HandlerDef
}

// Field is one initial state entry.
type Field struct {
	Key   string
	Value string
}

// HandlerDef is an "on <event>" block. Body is dedented so its first
// statement starts at column zero.
type HandlerDef struct {
	Event string
	Body  string
	Line  int
}

// Handler returns the handler for event, if declared.
func (d *Definition) Handler(event string) (HandlerDef, bool) {
	for _, h := range d.Handlers {
		if h.Event == event {
			return h, true
		}
	}
	return HandlerDef{}, false
}

// DefinitionError reports a malformed actor declaration.
type DefinitionError struct {
	Line    int
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("actor definition line %d: %s", e.Line, e.Message)
}

type section int

const (
	sectionHeader section = iota
	sectionState
	sectionHandlers
)

// ParseDefinition parses a single actor declaration:
//
//	actor Counter
//	    role is "counts things"
//	    state has
//	        count -> 0
//	    handlers
//	        on inc
//	            state.count -> state.count + 1
func ParseDefinition(src string) (*Definition, error) {
	defs, err := ParseDefinitions(src)
	if err != nil {
		return nil, err
	}
	if len(defs) != 1 {
		return nil, &DefinitionError{Line: 1, Message: fmt.Sprintf("expected one actor, found %d", len(defs))}
	}
	return defs[0], nil
}

// ParseDefinitions parses every actor declaration in src, in order.
func ParseDefinitions(src string) ([]*Definition, error) {
	var (
		defs     []*Definition
		cur      *Definition
		sec      section
		handler  *HandlerDef
		body     []string
		onIndent = -1
	)

	flush := func() {
		if handler != nil {
			handler.Body = dedent(body)
			cur.Handlers = append(cur.Handlers, *handler)
			handler, body = nil, nil
		}
	}

	for i, raw := range strings.Split(src, "\n") {
		num := i + 1
		raw = strings.TrimRight(raw, " \t\r")
		text := strings.TrimSpace(raw)
		indent := len(raw) - len(strings.TrimLeft(raw, " \t"))

		if text == "" {
			if handler != nil {
				body = append(body, "")
			}
			continue
		}
		if strings.HasPrefix(text, "//") {
			if handler != nil && indent > onIndent {
				body = append(body, raw)
			}
			continue
		}

		// Inside a handler everything indented past "on" belongs to the body.
		if handler != nil && indent > onIndent {
			body = append(body, raw)
			continue
		}

		if name, ok := strings.CutPrefix(text, "actor "); ok {
			flush()
			name = norm.NFC.String(strings.TrimSpace(name))
			if name == "" {
				return nil, &DefinitionError{Line: num, Message: "actor needs a name"}
			}
			cur = &Definition{Name: name}
			defs = append(defs, cur)
			sec, onIndent = sectionHeader, -1
			continue
		}
		if cur == nil {
			return nil, &DefinitionError{Line: num, Message: "expected 'actor <Name>'"}
		}

		switch {
		case strings.HasPrefix(text, "role is "):
			flush()
			cur.Role = unquote(strings.TrimSpace(text[len("role is "):]))
		case text == "state has":
			flush()
			sec = sectionState
		case text == "handlers":
			flush()
			sec = sectionHandlers
		case sec == sectionHandlers && strings.HasPrefix(text, "on "):
			flush()
			event := strings.TrimSpace(text[len("on "):])
			if event == "" {
				return nil, &DefinitionError{Line: num, Message: "on needs an event name"}
			}
			if _, dup := cur.Handler(event); dup {
				return nil, &DefinitionError{Line: num, Message: fmt.Sprintf("duplicate handler %q", event)}
			}
			handler = &HandlerDef{Event: event, Line: num}
			onIndent = indent
		case sec == sectionState:
			f, ok := parseField(text)
			if !ok {
				return nil, &DefinitionError{Line: num, Message: fmt.Sprintf("expected 'key -> value' or 'key is value', got %q", text)}
			}
			cur.State = append(cur.State, f)
		default:
			return nil, &DefinitionError{Line: num, Message: fmt.Sprintf("unexpected %q", text)}
		}
	}
	if cur != nil {
		flush()
	}
	if len(defs) == 0 {
		return nil, &DefinitionError{Line: 1, Message: "no actor declared"}
	}
	return defs, nil
}

// parseField splits "key -> value" or "key is value". "->" wins when both
// appear.
func parseField(text string) (Field, bool) {
	key, value, ok := strings.Cut(text, "->")
	if !ok {
		key, value, ok = strings.Cut(text, " is ")
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return Field{}, false
	}
	return Field{Key: key, Value: unquote(strings.TrimSpace(value))}, true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// dedent strips the smallest indentation shared by the non-blank lines
// and drops trailing blank lines.
func dedent(lines []string) string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	common := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out[i] = l[common:]
	}
	return strings.Join(out, "\n")
}
