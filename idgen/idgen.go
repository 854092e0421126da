// Package idgen provides pluggable ID generation.
//
// Content-derived ids (stable document ids) are computed from hashes and do
// not come from here. idgen covers the ids that have no content to anchor
// them: the suffix of unnamed flows and ingest-log rows.
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Generator produces identifiers.
type Generator func() string

// Hex returns a Generator of n lowercase hex characters from crypto/rand.
func Hex(n int) Generator {
	return func() string {
		buf := make([]byte, (n+1)/2)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return hex.EncodeToString(buf)[:n]
	}
}

// UUIDv7 returns a Generator of RFC 9562 time-sortable UUIDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every id from gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an id using Default.
func New() string {
	return Default()
}

// Fixed returns a Generator that always yields id. Tests use it to pin the
// otherwise random suffix of unnamed flows.
func Fixed(id string) Generator {
	return func() string { return id }
}
