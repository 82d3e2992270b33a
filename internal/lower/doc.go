// Package lower turns the abstract operations a surface parser produces
// into cells on an ir.Program.
//
// The input is a list of sends ({target, selector, args}) and inheritance
// declarations ({child, parent}). Each send is classified as reversible
// (R-term) or irreversible (D-term), mapped to an opcode and given a
// canonical path for provenance. Inheritance cycles are reported.
package lower
