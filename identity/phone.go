package identity

import "strings"

const countryPrefix = "38"

// NormalizePhone reduces a raw phone string to digits and forces the "38"
// country prefix. Numbers starting with 0 become 38 + number; anything else
// that does not already start with 38 also gets 38 prepended. Length is not
// checked. ok is false when the input holds no digits.
func NormalizePhone(raw string) (phone string, ok bool) {
	digits := digitsOnly(raw)
	if digits == "" {
		return "", false
	}
	if strings.HasPrefix(digits, "0") {
		digits = countryPrefix + digits
	}
	if !strings.HasPrefix(digits, countryPrefix) {
		digits = countryPrefix + digits
	}
	return digits, true
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
