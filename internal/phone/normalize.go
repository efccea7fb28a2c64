// Package phone normalizes raw phone input into the leading-plus form used as
// the durable key for leads and threads.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when libphonenumber needs a region hint
const DefaultRegion = "CA"

// Normalize strips everything but digits and a leading '+', adds a '+' when
// missing (prefixing plain 10-digit North American numbers with +1), and
// canonicalizes valid numbers to E.164. It returns "" when no digits remain.
// Normalize(Normalize(p)) == Normalize(p) for every input.
func Normalize(raw string) string {
	candidate := digitsForm(raw)
	if candidate == "" {
		return ""
	}

	parsed, err := phonenumbers.Parse(candidate, DefaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return candidate
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}

// Equal reports whether two raw inputs normalize to the same key
func Equal(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}

func digitsForm(raw string) string {
	raw = strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(raw, "+")

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	if hasPlus {
		return "+" + digits
	}
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return "+" + digits
	}
}
