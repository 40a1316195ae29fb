package notify

import "strings"

// NormalizePhone converts a local Nigerian number (080...) to international
// form without the plus sign (23480...). Other numbers are only stripped of
// separators.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) == 11 && strings.HasPrefix(digits, "0") {
		return "234" + digits[1:]
	}

	return digits
}
