// Package phone canonicalizes free-form phone input into the single key used
// for every driver lookup.
package phone

import (
	"regexp"
	"strings"
)

var validPhone = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// Normalizer rewrites local numbers into international form using CountryCode
type Normalizer struct {
	CountryCode string
}

// NewNormalizer creates a normalizer for the given country code, e.g. "+30"
func NewNormalizer(countryCode string) *Normalizer {
	cc := strings.TrimSpace(countryCode)
	if cc != "" && !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	return &Normalizer{CountryCode: cc}
}

// Normalize returns the canonical phone key, or "" when nothing is salvageable.
// The output may still be invalid; callers check it with Valid.
func (n *Normalizer) Normalize(raw string) string {
	cleaned := clean(raw)
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}
	if len(cleaned) == 10 && cleaned[0] == '0' && allDigits(cleaned) {
		return n.CountryCode + cleaned[1:]
	}
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	if len(cleaned) == 9 && allDigits(cleaned) {
		return n.CountryCode + cleaned
	}
	return cleaned
}

// Canonical normalizes raw and reports whether the result looks like an E.164 number
func (n *Normalizer) Canonical(raw string) (string, bool) {
	p := n.Normalize(raw)
	return p, Valid(p)
}

// Valid reports whether p is a plausible international phone number
func Valid(p string) bool {
	return validPhone.MatchString(p)
}

// Mask hides all but the last four digits
func Mask(p string) string {
	if len(p) >= 4 {
		return "***" + p[len(p)-4:]
	}
	return "***"
}

func clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
