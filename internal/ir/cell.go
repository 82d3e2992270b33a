package ir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Provenance records where a cell came from.
type Provenance struct {
	Origin string // source label, e.g. a file name
	Line   int    // 1-based source line, 0 if unknown
	Path   string // canonical path, e.g. "Counter.increment"
}

// Cell is one operation instance: the unit of execution, inspection and
// mutation.
type Cell struct {
	ID         int64
	Opcode     Opcode
	Operands   []string
	Reversible bool
	Inverse    *Cell
	Executed   bool
	Result     IRValue
	Provenance Provenance
}

// NewCell creates a cell for op. The cell is reversible exactly when op has
// a resolvable inverse.
func NewCell(op Opcode, operands ...string) *Cell {
	return &Cell{
		Opcode:     op,
		Operands:   append([]string{}, operands...),
		Reversible: HasInverse(op),
	}
}

// NewDTermCell creates an irreversible cell regardless of op.
func NewDTermCell(op Opcode, operands ...string) *Cell {
	c := NewCell(op, operands...)
	c.Reversible = false
	return c
}

// DeriveInverse builds the inverse of c: identity for gates, a table lookup
// for composite opcodes. The returned cell has no inverse of its own.
// ok is false when c's opcode has no inverse.
func DeriveInverse(c *Cell) (*Cell, bool) {
	if c == nil {
		return nil, false
	}
	op, ok := InverseOf(c.Opcode)
	if !ok {
		return nil, false
	}
	return &Cell{
		Opcode:     op,
		Operands:   append([]string{}, c.Operands...),
		Reversible: true,
		Provenance: c.Provenance,
	}, true
}

// Reset clears execution state.
func (c *Cell) Reset() {
	c.Executed = false
	c.Result = nil
}

// Clone returns a deep copy of c. The inverse is copied one level deep.
func (c *Cell) Clone() *Cell {
	out := *c
	if c.Operands != nil {
		out.Operands = append([]string{}, c.Operands...)
	}
	if c.Inverse != nil {
		inv := *c.Inverse
		inv.Operands = append([]string(nil), c.Inverse.Operands...)
		inv.Inverse = nil
		out.Inverse = &inv
	}
	return &out
}

// String renders the cell as "Cell#<id>: OP(a, b) @ path".
func (c *Cell) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cell#%d: %s(%s)", c.ID, c.Opcode.Upper(), strings.Join(c.Operands, ", "))
	if c.Provenance.Path != "" {
		b.WriteString(" @ ")
		b.WriteString(c.Provenance.Path)
	}
	return b.String()
}

var cellPattern = regexp.MustCompile(`^Cell#(\d+):\s*([A-Za-z_][A-Za-z0-9_]*)\((.*)\)(?:\s*@\s*(\S+))?$`)

// ParseCell parses the String form back into a cell. Reversibility is
// derived from the opcode.
func ParseCell(s string) (*Cell, error) {
	m := cellPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, fmt.Errorf("malformed cell %q", s)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cell id: %w", err)
	}
	var operands []string
	if args := strings.TrimSpace(m[3]); args != "" {
		for _, a := range strings.Split(args, ",") {
			operands = append(operands, strings.TrimSpace(a))
		}
	}
	c := NewCell(Opcode(strings.ToLower(m[2])), operands...)
	c.ID = id
	c.Provenance.Path = m[4]
	return c, nil
}

// identity is the hashed projection of a cell.
func (c *Cell) identity() IRObject {
	args := make(IRArray, len(c.Operands))
	for i, a := range c.Operands {
		args[i] = IRString(a)
	}
	return IRObject{
		"id":            IRInt(c.ID),
		"opcode":        IRString(c.Opcode),
		"args":          args,
		"is_reversible": IRBool(c.Reversible),
	}
}
