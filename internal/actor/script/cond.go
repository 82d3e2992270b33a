package script

import (
	"cmp"
	"fmt"
	"strings"
)

// comparisonOps are tried in this order; the first one found splits the
// condition.
var comparisonOps = []string{"<=", ">=", "==", "!=", "<", ">"}

// Cond is a compiled condition: either "left op right" or a bare value.
type Cond struct {
	Raw   string
	Op    string
	Left  *Expr
	Right *Expr
}

// CompileCond compiles a condition.
func CompileCond(src string) (*Cond, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty condition")
	}
	for _, op := range comparisonOps {
		if l, r, ok := strings.Cut(src, op); ok {
			if strings.TrimSpace(l) == "" || strings.TrimSpace(r) == "" {
				return nil, fmt.Errorf("condition %q: %s needs two operands", src, op)
			}
			return &Cond{Raw: src, Op: op, Left: CompileExpr(l), Right: CompileExpr(r)}, nil
		}
	}
	return &Cond{Raw: src, Left: CompileExpr(src)}, nil
}

// Eval evaluates the condition.
//
// When both sides are numbers they compare numerically. Otherwise == and
// != compare the text, and the ordering operators treat non-numeric
// operands as zero. A bare value holds when it is "true" or a non-zero
// number.
func (c *Cond) Eval(lookup Lookup) bool {
	l, _ := c.Left.Eval(lookup)
	if c.Op == "" {
		return truthy(l)
	}
	r, _ := c.Right.Eval(lookup)

	lv, rv := parseValue(l), parseValue(r)
	if !lv.isNum || !rv.isNum {
		switch c.Op {
		case "==":
			return l == r
		case "!=":
			return l != r
		}
	}

	order := compareNumbers(lv, rv)
	switch c.Op {
	case "==":
		return order == 0
	case "!=":
		return order != 0
	case "<=":
		return order <= 0
	case ">=":
		return order >= 0
	case "<":
		return order < 0
	case ">":
		return order > 0
	}
	return false
}

// compareNumbers orders a and b, exactly when both are integers.
// Non-numbers compare as zero.
func compareNumbers(a, b value) int {
	if a.isInt && b.isInt {
		return cmp.Compare(a.i, b.i)
	}
	return cmp.Compare(a.float(), b.float())
}

func (c *Cond) String() string { return c.Raw }

func truthy(s string) bool {
	if s == "true" {
		return true
	}
	v := parseValue(s)
	return v.isNum && v.float() != 0
}
