package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProgram(t *testing.T) *Program {
	t.Helper()
	p := NewProgram("sample")
	add, err := p.Append(NewCell(OpAdd, "5", "3"))
	require.NoError(t, err)
	add.Provenance = Provenance{Origin: "sample.rio", Line: 1, Path: "Calc.add"}
	add.Executed = true
	add.Result = IRInt(8)
	_, err = p.Append(NewCell(OpMultiply, "result", "2"))
	require.NoError(t, err)
	_, err = p.Append(NewDTermCell(OpPrint, "done"))
	require.NoError(t, err)
	return p
}

func TestDocument_Fields(t *testing.T) {
	data, err := sampleProgram(t).Encode()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "sample", raw["source_name"])
	assert.EqualValues(t, 3, raw["cell_count"])

	cells := raw["cells"].([]any)
	require.Len(t, cells, 3)
	first := cells[0].(map[string]any)
	assert.EqualValues(t, 1, first["id"])
	assert.Equal(t, "add", first["opcode"])
	assert.Equal(t, []any{"5", "3"}, first["args"])
	assert.Equal(t, true, first["is_reversible"])
	assert.Equal(t, true, first["executed"])
	assert.EqualValues(t, 8, first["result"])
	assert.Equal(t, "Calc.add", first["path"])
}

func TestDecode_RoundTrip(t *testing.T) {
	orig := sampleProgram(t)
	data, err := orig.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, orig.SourceName, decoded.SourceName)
	assert.Equal(t, orig.Stats(), decoded.Stats())
	require.Equal(t, orig.Len(), decoded.Len())
	for i, c := range orig.Cells() {
		d, _ := decoded.At(i)
		assert.Equal(t, c.String(), d.String())
		assert.Equal(t, c.Reversible, d.Reversible)
		assert.Equal(t, c.Executed, d.Executed)
		assert.Equal(t, c.Result, d.Result)
		assert.Equal(t, c.Provenance, d.Provenance)
	}
	first, _ := decoded.At(0)
	require.NotNil(t, first.Inverse)
	assert.Equal(t, OpSubtract, first.Inverse.Opcode)

	assert.Equal(t, orig.MustDigest(), decoded.MustDigest())

	// Appending after decode continues the id sequence.
	next, err := decoded.Append(NewCell(OpFlip, "0"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), next.ID)
}

func TestDecode_PreservesDeclaredCount(t *testing.T) {
	doc := `{"source_name":"x","cell_count":5,"cells":[{"id":1,"opcode":"flip","args":["0"],"is_reversible":true,"executed":false}]}`

	p, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 5, p.CellCount())
	assert.Equal(t, 1, p.Len())
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", `{"source_name":"x","cell_count":0,"cells":[],"extra":1}`},
		{"missing opcode", `{"source_name":"x","cell_count":1,"cells":[{"id":1,"args":[],"is_reversible":false,"executed":false}]}`},
		{"float result", `{"source_name":"x","cell_count":1,"cells":[{"id":1,"opcode":"add","args":[],"is_reversible":true,"executed":true,"result":1.5}]}`},
		{"not json", `cells:`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestMarshalCanonical_KeyOrderAndNormalization(t *testing.T) {
	obj := IRObject{
		"b": IRString("<x>"),
		"a": IRArray{IRInt(1), IRBool(true)},
		// "e" followed by a combining acute accent normalizes to U+00E9.
		"c": IRString("e\u0301"),
	}
	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":[1,true],\"b\":\"<x>\",\"c\":\"\u00e9\"}", string(data))

	_, err = MarshalCanonical(IRObject{"n": IRNull{}})
	assert.Error(t, err)
}

func TestDisplayAndAsInt(t *testing.T) {
	assert.Equal(t, "8", Display(IRInt(8)))
	assert.Equal(t, "done", Display(IRString("done")))
	assert.Equal(t, "true", Display(IRBool(true)))
	assert.Equal(t, "", Display(nil))
	assert.Equal(t, "[1, x]", Display(IRArray{IRInt(1), IRString("x")}))

	n, ok := AsInt(IRString(" 42 "))
	require.True(t, ok)
	assert.Equal(t, int64(42), n)
	_, ok = AsInt(IRString("abc"))
	assert.False(t, ok)
	n, ok = AsInt(IRBool(true))
	require.True(t, ok)
	assert.Equal(t, int64(1), n)
}
