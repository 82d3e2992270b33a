package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// hashed layout to change without colliding with older digests.
const (
	DomainProgram = "rio/program/v1"
	DomainCell    = "rio/cell/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CellDigest hashes the identity-bearing fields of a cell: id, opcode,
// operands and reversibility. Execution state is excluded, so stepping a
// cell does not change its digest.
func CellDigest(c *Cell) (string, error) {
	data, err := MarshalCanonical(c.identity())
	if err != nil {
		return "", fmt.Errorf("CellDigest: %w", err)
	}
	return hashWithDomain(DomainCell, data), nil
}

// Digest hashes the program's canonical document.
func (p *Program) Digest() (string, error) {
	data, err := MarshalCanonical(p.Document().toIR())
	if err != nil {
		return "", fmt.Errorf("Program.Digest: %w", err)
	}
	return hashWithDomain(DomainProgram, data), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when the program is known to be well formed.
func (p *Program) MustDigest() string {
	d, err := p.Digest()
	if err != nil {
		panic(err)
	}
	return d
}
