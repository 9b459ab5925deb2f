package domain

import (
	"sort"
	"time"
)

type Payload map[string]any

func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}

	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a new payload with partial laid over p. Nested maps are
// replaced, not merged.
func (p Payload) Merge(partial Payload) Payload {
	out := p.Clone()
	for k, v := range partial {
		out[k] = v
	}
	return out
}

func (p Payload) Fields() []string {
	fields := make([]string, 0, len(p))
	for k := range p {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func (p Payload) String(field string) string {
	value, ok := p[field].(string)
	if !ok {
		return ""
	}
	return value
}

// AsPayload accepts the shapes a payload takes after passing through a
// store: the Payload itself or a decoded map[string]any.
func AsPayload(v any) (Payload, bool) {
	switch typed := v.(type) {
	case Payload:
		return typed, true
	case map[string]any:
		return Payload(typed), true
	default:
		return nil, false
	}
}

type StateEntry struct {
	Key       string
	Payload   Payload
	ExpiresAt time.Time
}

func (e StateEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type StateMeta struct {
	Key       string
	ExpiresIn time.Duration
	Size      int
	Fields    []string
}

func (e StateEntry) Meta(now time.Time) StateMeta {
	return StateMeta{
		Key:       e.Key,
		ExpiresIn: e.ExpiresAt.Sub(now),
		Size:      len(e.Payload),
		Fields:    e.Payload.Fields(),
	}
}
