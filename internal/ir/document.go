package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the serialized data view of a Program.
//
//	{
//	  "source_name": "demo",
//	  "cell_count": 2,
//	  "cells": [
//	    {"id": 1, "opcode": "add", "args": ["5", "3"], "is_reversible": true, "executed": false}
//	  ]
//	}
//
// Optional per-cell fields: "result" (any JSON value except floats),
// "origin", "line" and "path" (provenance).
type Document struct {
	SourceName string         `json:"source_name"`
	CellCount  int            `json:"cell_count"`
	Cells      []DocumentCell `json:"cells"`
}

// DocumentCell is one cell in a Document.
type DocumentCell struct {
	ID           int64           `json:"id"`
	Opcode       string          `json:"opcode"`
	Args         []string        `json:"args"`
	IsReversible bool            `json:"is_reversible"`
	Executed     bool            `json:"executed"`
	Result       json.RawMessage `json:"result,omitempty"`
	Origin       string          `json:"origin,omitempty"`
	Line         int             `json:"line,omitempty"`
	Path         string          `json:"path,omitempty"`
}

// Document builds the program's serialized view.
func (p *Program) Document() Document {
	doc := Document{
		SourceName: p.SourceName,
		CellCount:  p.declared,
		Cells:      make([]DocumentCell, 0, len(p.cells)),
	}
	for _, c := range p.cells {
		if c == nil {
			continue
		}
		dc := DocumentCell{
			ID:           c.ID,
			Opcode:       string(c.Opcode),
			Args:         append([]string{}, c.Operands...),
			IsReversible: c.Reversible,
			Executed:     c.Executed,
			Origin:       c.Provenance.Origin,
			Line:         c.Provenance.Line,
			Path:         c.Provenance.Path,
		}
		if c.Result != nil {
			if raw, err := MarshalIRValue(c.Result); err == nil {
				dc.Result = raw
			}
		}
		doc.Cells = append(doc.Cells, dc)
	}
	return doc
}

// toIR converts the document to an IRObject for canonical encoding.
func (d Document) toIR() IRObject {
	cells := make(IRArray, len(d.Cells))
	for i, dc := range d.Cells {
		args := make(IRArray, len(dc.Args))
		for j, a := range dc.Args {
			args[j] = IRString(a)
		}
		obj := IRObject{
			"id":            IRInt(dc.ID),
			"opcode":        IRString(dc.Opcode),
			"args":          args,
			"is_reversible": IRBool(dc.IsReversible),
			"executed":      IRBool(dc.Executed),
		}
		if len(dc.Result) > 0 {
			if v, err := UnmarshalIRValue(dc.Result); err == nil {
				if _, isNull := v.(IRNull); !isNull {
					obj["result"] = v
				}
			}
		}
		if dc.Origin != "" {
			obj["origin"] = IRString(dc.Origin)
		}
		if dc.Line != 0 {
			obj["line"] = IRInt(dc.Line)
		}
		if dc.Path != "" {
			obj["path"] = IRString(dc.Path)
		}
		cells[i] = obj
	}
	return IRObject{
		"source_name": IRString(d.SourceName),
		"cell_count":  IRInt(d.CellCount),
		"cells":       cells,
	}
}

// Encode returns the program's canonical JSON document.
func (p *Program) Encode() ([]byte, error) {
	data, err := MarshalCanonical(p.Document().toIR())
	if err != nil {
		return nil, fmt.Errorf("encode program %q: %w", p.SourceName, err)
	}
	return data, nil
}

// EncodeIndent returns the document indented for human inspection.
func (p *Program) EncodeIndent() ([]byte, error) {
	return json.MarshalIndent(p.Document(), "", "  ")
}

// Decode parses a document into a live program. Unknown fields are
// rejected. Cell ids, execution flags and the declared cell count are taken
// as written; reversible cells get their inverses re-derived. Structural
// problems such as duplicate ids are left for the consistency checker.
func Decode(data []byte) (*Program, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode program document: %w", err)
	}
	return FromDocument(doc)
}

// FromDocument rebuilds a program from an already parsed document.
func FromDocument(doc Document) (*Program, error) {
	p := NewProgram(doc.SourceName)
	for i, dc := range doc.Cells {
		if dc.Opcode == "" {
			return nil, fmt.Errorf("cells[%d]: missing opcode", i)
		}
		c := &Cell{
			ID:         dc.ID,
			Opcode:     Opcode(dc.Opcode),
			Operands:   append([]string{}, dc.Args...),
			Reversible: dc.IsReversible,
			Executed:   dc.Executed,
			Provenance: Provenance{Origin: dc.Origin, Line: dc.Line, Path: dc.Path},
		}
		if len(dc.Result) > 0 {
			v, err := UnmarshalIRValue(dc.Result)
			if err != nil {
				return nil, fmt.Errorf("cells[%d].result: %w", i, err)
			}
			if _, isNull := v.(IRNull); !isNull {
				c.Result = v
			}
		}
		if c.Reversible {
			if inv, ok := DeriveInverse(c); ok {
				c.Inverse = inv
			}
		}
		if err := p.AppendWithID(c); err != nil {
			return nil, fmt.Errorf("cells[%d]: %w", i, err)
		}
	}
	p.declared = doc.CellCount
	return p, nil
}
