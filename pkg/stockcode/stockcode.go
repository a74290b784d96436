// Package stockcode converts between the broker's six digit security codes
// and the platform's exchange-suffixed form (600000.SH, 000001.SZ).
package stockcode

import (
	"strings"
)

const (
	ExchangeSH = "SH"
	ExchangeSZ = "SZ"
)

var (
	shPrefixes = []string{"600", "601", "603", "605", "688", "689", "50", "51", "56", "58"}
	szPrefixes = []string{"000", "001", "002", "003", "300", "301", "15", "16", "18"}
)

// ToPlatform appends the exchange suffix to a broker code. Codes that already
// carry a suffix are returned as is.
func ToPlatform(code string) string {
	code = strings.TrimSpace(code)
	if strings.Contains(code, ".") {
		return strings.ToUpper(code)
	}
	code = padCode(code)
	if code == "" {
		return code
	}

	switch code[0] {
	case '6', '5', '9':
		return code + "." + ExchangeSH
	default:
		return code + "." + ExchangeSZ
	}
}

// ToBroker strips the exchange suffix.
func ToBroker(code string) string {
	code = strings.TrimSpace(code)
	if len(code) > 6 {
		return code[:6]
	}
	return code
}

// IsValid reports whether code is a tradable stock or fund in platform form.
// Allotted bonds and rights that show up in positions are rejected.
func IsValid(code string) bool {
	num, exchange, ok := strings.Cut(code, ".")
	if !ok || len(num) != 6 || !isDigits(num) {
		return false
	}

	switch exchange {
	case ExchangeSH:
		return hasAnyPrefix(num, shPrefixes)
	case ExchangeSZ:
		return hasAnyPrefix(num, szPrefixes)
	default:
		return false
	}
}

// padCode restores leading zeros the UI table may have dropped when it
// parsed 000001 as a number.
func padCode(code string) string {
	if code == "" || len(code) >= 6 || !isDigits(code) {
		return code
	}
	return strings.Repeat("0", 6-len(code)) + code
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
