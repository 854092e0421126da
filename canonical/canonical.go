// CLAUDE:SUMMARY Canonical JSON form (null/empty pruning, NFC strings, RFC 8785 via jcs) and SHA-256 content hash.
// Package canonical produces the deterministic serialization used to
// fingerprint artifacts.
//
// A value is first marshaled with encoding/json, decoded back into generic
// maps and slices, pruned of null and empty-string map entries, NFC
// normalized, and finally serialized per RFC 8785 (sorted keys, compact,
// no HTML escaping). List order is never changed.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/flowkeeper/faults"
)

// Canonicalize returns the canonical form of v. Values encoding/json cannot
// marshal (channels, functions, NaN) yield an error matching
// faults.ErrMalformedInput.
func Canonicalize(v any) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bytes is Canonicalize returning the raw bytes.
func Bytes(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, faults.Malformedf("canonical: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, faults.Malformedf("canonical: decode: %w", err)
	}

	tree, err := prune(generic)
	if err != nil {
		return nil, err
	}
	pruned, err := json.Marshal(tree)
	if err != nil {
		return nil, faults.Malformedf("canonical: re-marshal: %w", err)
	}
	out, err := jcs.Transform(pruned)
	if err != nil {
		return nil, faults.Malformedf("canonical: jcs: %w", err)
	}
	return out, nil
}

// FromJSON canonicalizes an already encoded JSON document.
func FromJSON(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", faults.Malformedf("canonical: decode: %w", err)
	}
	return Canonicalize(generic)
}

// ComputeHash returns the lowercase hex SHA-256 of s.
func ComputeHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Hash is ComputeHash(Canonicalize(v)).
func Hash(v any) (string, error) {
	s, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return ComputeHash(s), nil
}

// prune drops null and empty-string map entries and NFC-normalizes keys
// and strings. Two keys that normalize to the same form are rejected.
func prune(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if elem == nil {
				continue
			}
			if s, ok := elem.(string); ok && s == "" {
				continue
			}
			nk := norm.NFC.String(k)
			if _, dup := out[nk]; dup {
				return nil, faults.Malformedf("canonical: keys collide after NFC normalization: %q", nk)
			}
			p, err := prune(elem)
			if err != nil {
				return nil, err
			}
			out[nk] = p
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			p, err := prune(elem)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case string:
		return norm.NFC.String(val), nil
	default:
		return val, nil
	}
}
