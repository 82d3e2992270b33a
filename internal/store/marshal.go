package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/rio/internal/ir"
)

// timeLayout is used for every timestamp column.
const timeLayout = time.RFC3339Nano

// marshalArgs converts operands to canonical JSON TEXT for storage.
func marshalArgs(args []string) (string, error) {
	arr := make(ir.IRArray, len(args))
	for i, a := range args {
		arr[i] = ir.IRString(a)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses a JSON array of strings.
func unmarshalArgs(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return []string{}, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, fmt.Errorf("unmarshal args: want array, got %T", v)
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, ok := e.(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("unmarshal args: element %d is %T", i, e)
		}
		out[i] = string(s)
	}
	return out, nil
}

// marshalResult converts a cell result to canonical JSON. A nil result is
// stored as SQL NULL.
func marshalResult(v ir.IRValue) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if _, isNull := v.(ir.IRNull); isNull {
		return sql.NullString{}, nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalResult parses a stored result; NULL becomes nil.
func unmarshalResult(ns sql.NullString) (ir.IRValue, error) {
	if !ns.Valid {
		return nil, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(ns.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	if _, isNull := v.(ir.IRNull); isNull {
		return nil, nil
	}
	return v, nil
}

// marshalBits renders a bit snapshot as "0101...".
func marshalBits(bits []bool) string {
	buf := make([]byte, len(bits))
	for i, b := range bits {
		if b {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}

// unmarshalBits parses a "0101..." snapshot.
func unmarshalBits(s string) ([]bool, error) {
	out := make([]bool, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
		case '1':
			out[i] = true
		default:
			return nil, fmt.Errorf("unmarshal bits: invalid character %q at %d", s[i], i)
		}
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
