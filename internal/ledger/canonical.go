// Package ledger implements the append-only hash-chained record of
// every decision. Entries link through SHA-256 over a canonical JSON
// form so any mutation of recorded history is detectable.
package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON renders v deterministically: object keys in ASCII sort
// order, numbers in shortest round-trip form, no whitespace, no HTML
// escaping. Two structurally equal values always produce identical
// bytes, which is what the hash chain relies on.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to canonicalize: %w", err)
	}
	// Encoder terminates with a newline the canonical form excludes
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// HashJSON returns the hex SHA-256 of the canonical JSON of v
func HashJSON(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SnapshotHash hashes a symbol->price map as an array of
// [symbol, price] pairs sorted lexicographically by symbol.
func SnapshotHash(prices map[string]float64) (string, error) {
	symbols := make([]string, 0, len(prices))
	for sym := range prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	pairs := make([][]any, 0, len(symbols))
	for _, sym := range symbols {
		pairs = append(pairs, []any{sym, prices[sym]})
	}
	return HashJSON(pairs)
}
