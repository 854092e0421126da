// CLAUDE:SUMMARY RawEvent and sanitized Event types: the allow-listed field set of a recorded interaction step.
package sanitize

import "encoding/json"

// RawEvent is one recorded interaction as produced by a recorder or loaded
// from JSON. Every key is optional; unknown keys (timestamps, session ids)
// are dropped by Sanitize.
type RawEvent map[string]any

// AllowedFields is the allow-list, in the order fields are declared on Event.
var AllowedFields = []string{
	"type", "selector", "action", "url", "tag", "text", "value",
	"meta", "name", "label", "parent_hierarchy", "sibling_tags",
}

// Event is a sanitized interaction step. Fields keep the JSON type they had
// in the RawEvent; nil means the key was absent or null.
type Event struct {
	Type            any `json:"type,omitempty"`
	Selector        any `json:"selector,omitempty"`
	Action          any `json:"action,omitempty"`
	URL             any `json:"url,omitempty"`
	Tag             any `json:"tag,omitempty"`
	Text            any `json:"text,omitempty"`
	Value           any `json:"value,omitempty"`
	Meta            any `json:"meta,omitempty"`
	Name            any `json:"name,omitempty"`
	Label           any `json:"label,omitempty"`
	ParentHierarchy any `json:"parent_hierarchy,omitempty"`
	SiblingTags     any `json:"sibling_tags,omitempty"`
}

func (e *Event) slot(key string) *any {
	switch key {
	case "type":
		return &e.Type
	case "selector":
		return &e.Selector
	case "action":
		return &e.Action
	case "url":
		return &e.URL
	case "tag":
		return &e.Tag
	case "text":
		return &e.Text
	case "value":
		return &e.Value
	case "meta":
		return &e.Meta
	case "name":
		return &e.Name
	case "label":
		return &e.Label
	case "parent_hierarchy":
		return &e.ParentHierarchy
	case "sibling_tags":
		return &e.SiblingTags
	}
	return nil
}

// Fields returns the non-nil fields as a map, the shape the canonicalizer
// and the persisted flow file consume.
func (e Event) Fields() map[string]any {
	out := make(map[string]any, len(AllowedFields))
	for _, k := range AllowedFields {
		if v := *e.slot(k); v != nil {
			out[k] = v
		}
	}
	return out
}

// SelectorString returns the selector when it is textual.
func (e Event) SelectorString() string {
	s, _ := e.Selector.(string)
	return s
}

// ParseEvents decodes a JSON array of raw events.
func ParseEvents(data []byte) ([]RawEvent, error) {
	var events []RawEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}
