package domain

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var brlPrinter = message.NewPrinter(language.BrazilianPortuguese)

// ParseMoney normalises a currency-like input into a decimal amount.
//
// The rule is shared by every call site (cart insertion, quote maths, order
// totals): currency prefixes and whitespace are stripped; when both comma and
// dot appear, the right-most one is the decimal separator and the other is a
// thousands separator; a lone comma is the decimal separator; repeated dots
// keep only the last as decimal. Empty or non-numeric input yields 0.
func ParseMoney(value string) float64 {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0
	}

	s = strings.ReplaceAll(s, " ", "")
	if idx := strings.Index(strings.ToUpper(s), "R$"); idx == 0 {
		s = s[2:]
	}

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	case hasDot:
		if parts := strings.Split(s, "."); len(parts) > 2 {
			dec := parts[len(parts)-1]
			s = strings.Join(parts[:len(parts)-1], "") + "." + dec
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// FormatBRL renders an amount the way the storefront displays it, using the
// Brazilian Portuguese locale.
func FormatBRL(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	return brlPrinter.Sprintf("R$ %.2f", value)
}
