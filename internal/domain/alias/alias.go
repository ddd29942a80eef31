// Package alias maps noisy payer names onto canonical entity names.
//
// Bank remittances rarely carry the exact legal name printed on an invoice.
// A Resolver holds a static table of known variant spellings and subsidiaries
// (e.g. "tesla germany gmbh" -> "tesla inc") supplied by configuration.
//
// Example usage:
//
//	r := alias.NewResolver(map[string]string{
//		"Tesla Motors": "Tesla Inc",
//	})
//	r.Resolve("  TESLA   motors ") // "tesla inc"
//	r.Resolve("Acme Corp")         // "acme corp"
package alias

import "strings"

// Resolver resolves payer name variants to canonical names.
// A Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	table map[string]string
}

// NewResolver builds a resolver from a variant -> canonical mapping.
// Both keys and values are normalized, so configuration may use any casing.
// Entries whose normalized variant is empty are ignored.
func NewResolver(table map[string]string) *Resolver {
	normalized := make(map[string]string, len(table))
	for variant, canonical := range table {
		key := Normalize(variant)
		if key == "" {
			continue
		}
		normalized[key] = Normalize(canonical)
	}
	return &Resolver{table: normalized}
}

// Normalize lowercases a name, trims it and collapses internal whitespace.
// It never fails; the empty string normalizes to itself.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Resolve returns the canonical form of name.
// A name missing from the table is returned normalized; a miss is not an error.
func (r *Resolver) Resolve(name string) string {
	n := Normalize(name)
	if r == nil {
		return n
	}
	if canonical, ok := r.table[n]; ok {
		return canonical
	}
	return n
}

// Len returns the number of configured variants.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.table)
}

// Table returns a copy of the normalized variant table.
func (r *Resolver) Table() map[string]string {
	out := make(map[string]string, r.Len())
	if r == nil {
		return out
	}
	for k, v := range r.table {
		out[k] = v
	}
	return out
}
