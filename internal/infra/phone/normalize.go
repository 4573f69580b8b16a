// Package phone provides phone number utilities shared by the CRM and messaging sides.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultRegion = "IL"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// Digits strips everything but ASCII digits.
func Digits(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Variants returns the exact forms under which a number may have been stored:
// the trimmed input, the bare digits, the digits with a leading plus and the
// E.164 rendering. Matching against this set is exact; a number that merely
// contains another number never matches.
func Variants(input, region string) []string {
	trimmed := strings.TrimSpace(input)
	digits := Digits(trimmed)
	if digits == "" {
		return nil
	}

	seen := make(map[string]struct{}, 4)
	out := make([]string, 0, 4)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(trimmed)
	add(digits)
	add("+" + digits)
	add(NormalizeE164("+"+digits, region))
	return out
}

// WithoutPlus renders a number the way the WhatsApp Cloud API expects it.
func WithoutPlus(input string) string {
	return strings.TrimPrefix(strings.TrimSpace(input), "+")
}
