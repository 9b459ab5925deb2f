package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const (
	fingerprintSeparator = "|"
	nilPart              = "null"
)

// Fingerprint collects every input that changes a built form. Two
// fingerprints with equal String() values must build identical forms.
type Fingerprint struct {
	screen string
	parts  []string
	locale string
}

func NewFingerprint(screen string) Fingerprint {
	return Fingerprint{screen: screen}
}

func (f Fingerprint) With(parts ...any) Fingerprint {
	next := f.clone()
	for _, part := range parts {
		if part == nil {
			next.parts = append(next.parts, nilPart)
			continue
		}
		next.parts = append(next.parts, fmt.Sprint(part))
	}
	return next
}

// Locale canonicalises the tag so "en-us" and "en_US" share one entry.
// Unparseable tags are kept verbatim.
func (f Fingerprint) Locale(raw string) Fingerprint {
	next := f.clone()
	next.locale = CanonicalLocale(raw)
	return next
}

func (f Fingerprint) String() string {
	parts := f.parts
	if f.locale != "" {
		parts = append(append([]string(nil), parts...), f.locale)
	}
	return f.screen + keySeparator + strings.Join(parts, fingerprintSeparator)
}

func (f Fingerprint) clone() Fingerprint {
	return Fingerprint{
		screen: f.screen,
		parts:  append([]string(nil), f.parts...),
		locale: f.locale,
	}
}

func CanonicalLocale(raw string) string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, "_", "-"))
	if trimmed == "" {
		return ""
	}

	tag, err := language.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	return tag.String()
}
