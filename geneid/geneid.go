// Package geneid parses the compound gene identifiers used in count
// matrices, of the form "SYMBOL|ENTREZID", e.g. "TP53|7157".
package geneid

import (
	"fmt"
	"regexp"
)

// ID is a decomposed gene identifier.
type ID struct {
	// Symbol is the HGNC gene symbol part of the key.
	Symbol string
	// Entrez is the numeric Entrez gene ID part, kept as a string.
	Entrez string
}

var keyRE = regexp.MustCompile(`^([^|]+)\|(\d+)$`)

// Parse splits a compound gene key into its symbol and Entrez parts.
//
// Key example: "TP53|7157"
func Parse(key string) (ID, error) {
	m := keyRE.FindStringSubmatch(key)
	if m == nil {
		return ID{}, fmt.Errorf("malformed gene key %q, expect SYMBOL|ENTREZID", key)
	}
	return ID{Symbol: m[1], Entrez: m[2]}, nil
}

// String reassembles the compound key.
func (id ID) String() string { return id.Symbol + "|" + id.Entrez }
