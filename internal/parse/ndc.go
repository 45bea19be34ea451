package parse

import (
	"fmt"
	"strings"
)

// segment widths of the 11-digit 5-4-2 NDC form
var ndcWidths = [3]int{5, 4, 2}

// FormatNDC normalizes a National Drug Code to its 11-digit 5-4-2 form without separators.
// Hyphenated 4-4-2, 5-3-2 and 5-4-1 codes are zero-padded in the short segment.
// Unhyphenated input must already have 11 digits since a bare 10-digit code is ambiguous.
func FormatNDC(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty ndc")
	}

	parts := strings.Split(s, "-")
	switch len(parts) {
	case 1:
		if len(s) != 11 || !allDigits(s) {
			return "", fmt.Errorf("unable to format ndc %q: expected 11 digits", raw)
		}
		return s, nil
	case 3:
		digits := 0
		var b strings.Builder
		for i, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" || !allDigits(p) || len(p) > ndcWidths[i] {
				return "", fmt.Errorf("unable to format ndc %q: bad segment %q", raw, p)
			}
			digits += len(p)
			b.WriteString(strings.Repeat("0", ndcWidths[i]-len(p)))
			b.WriteString(p)
		}
		if digits != 10 && digits != 11 {
			return "", fmt.Errorf("unable to format ndc %q: expected 10 or 11 digits, got %d", raw, digits)
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("unable to format ndc %q", raw)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
