package provider

import (
	"regexp"
	"strings"
)

// Rwandan MSISDNs: optional +250/250/0 prefix, then 7 and a 2, 3 or 8,
// then seven more digits.
var msisdnPattern = regexp.MustCompile(`^(\+?250|0)?7[238]\d{7}$`)

var separatorReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// ValidatePhoneNumber reports whether raw is a valid Rwandan mobile money
// MSISDN. Rejected numbers never reach the network.
func ValidatePhoneNumber(raw string) bool {
	return msisdnPattern.MatchString(separatorReplacer.Replace(strings.TrimSpace(raw)))
}

// FormatPhoneNumber canonicalises raw to 2507XXXXXXXX: separators stripped,
// any +250/250/0 prefix replaced by 250.
func FormatPhoneNumber(raw string) string {
	s := separatorReplacer.Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimPrefix(s, "250")
	s = strings.TrimPrefix(s, "0")
	return "250" + s
}

// nationalNumber strips the country prefix from a canonical MSISDN; Airtel's
// API addresses subscribers in national format.
func nationalNumber(canonical string) string {
	return strings.TrimPrefix(canonical, "250")
}

// MaskPhoneNumber hides the middle of an MSISDN for log output, keeping the
// first six and last two characters.
func MaskPhoneNumber(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:6] + strings.Repeat("*", len(s)-8) + s[len(s)-2:]
}
