// CLAUDE:SUMMARY Event sanitizer: allow-list projection, value redaction, selector trimming, sorted masked-selector audit set.
// Package sanitize strips volatile fields from recorded interaction events
// and redacts their values.
//
// Per event, in replay order:
//   - keys outside AllowedFields are dropped (timestamps, session ids)
//   - a non-null value is replaced with RedactionMarker; its selector is
//     added to the masked set only when the selector is sensitive
//   - a textual selector is trimmed
//
// The masked set is de-duplicated and sorted so metadata is reproducible.
package sanitize

import (
	"sort"
	"strings"
)

// RedactionMarker replaces every redacted value.
const RedactionMarker = "<REDACTED>"

// DefaultKeywords are always treated as sensitive.
var DefaultKeywords = []string{"password", "token", "secret", "card", "ssn"}

// Mode selects which values are redacted.
type Mode int

const (
	// RedactAll redacts every non-null value; only sensitive selectors are
	// recorded in the masked set.
	RedactAll Mode = iota
	// RedactSensitive redacts only values whose selector is sensitive.
	RedactSensitive
)

// ParseMode maps a config string ("all", "sensitive") to a Mode.
// Unknown strings yield RedactAll.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "sensitive") {
		return RedactSensitive
	}
	return RedactAll
}

func (m Mode) String() string {
	if m == RedactSensitive {
		return "sensitive"
	}
	return "all"
}

// Options configures Sanitize.
type Options struct {
	// Keywords extends DefaultKeywords. Matching is case-insensitive.
	Keywords []string
	// Mode defaults to RedactAll.
	Mode Mode
}

// Sanitize projects events onto the allow-list and redacts values. It
// never fails: malformed events simply yield fewer fields. The output has
// exactly one Event per input, in input order.
func Sanitize(events []RawEvent, opts Options) ([]Event, []string) {
	kw := keywordSet(opts.Keywords)
	masked := make(map[string]struct{})
	out := make([]Event, 0, len(events))

	for _, raw := range events {
		var ev Event
		for _, k := range AllowedFields {
			if v, ok := raw[k]; ok {
				*ev.slot(k) = v
			}
		}

		if s, ok := ev.Selector.(string); ok {
			ev.Selector = strings.TrimSpace(s)
		}

		if ev.Value != nil {
			subject := auditSubject(ev)
			sensitive := subject != "" && matches(subject, kw)
			if sensitive {
				masked[subject] = struct{}{}
			}
			if sensitive || opts.Mode == RedactAll {
				ev.Value = RedactionMarker
			}
		}
		out = append(out, ev)
	}

	set := make([]string, 0, len(masked))
	for s := range masked {
		set = append(set, s)
	}
	sort.Strings(set)
	return out, set
}

// IsSensitive reports whether selector contains any default or extra keyword.
func IsSensitive(selector string, extra ...string) bool {
	return matches(selector, keywordSet(extra))
}

// auditSubject is the trimmed selector, or the label when no textual
// selector is present.
func auditSubject(ev Event) string {
	if s := ev.SelectorString(); s != "" {
		return s
	}
	if l, ok := ev.Label.(string); ok {
		return strings.TrimSpace(l)
	}
	return ""
}

func keywordSet(extra []string) []string {
	seen := make(map[string]struct{}, len(DefaultKeywords)+len(extra))
	var kw []string
	for _, k := range append(append([]string{}, DefaultKeywords...), extra...) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kw = append(kw, k)
	}
	return kw
}

func matches(subject string, kw []string) bool {
	lower := strings.ToLower(subject)
	for _, k := range kw {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
