// internal/model/key.go
package model

import (
	"strings"
	"time"
)

// NaturalKey is the kind-specific field combination used to detect
// duplicate records across independent fetches: the textual payload
// (message, title or comment), the author, and the record timestamp.
type NaturalKey struct {
	Text   string
	Author string
	At     time.Time
}

// Canonical renders the key as a single comparable string. Timestamps
// are truncated to whole seconds so that values surviving a round trip
// through the store still compare equal to freshly fetched ones.
func (k NaturalKey) Canonical() string {
	return strings.Join([]string{
		k.Text,
		k.Author,
		k.At.UTC().Truncate(time.Second).Format(time.RFC3339),
	}, "\x1f")
}
