package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxParsedCents caps what ParseCurrency accepts: $10,000,000,000.00.
const MaxParsedCents int64 = 1_000_000_000_000

// Plain digits or comma groups of three, with an optional fraction.
var currencyPattern = regexp.MustCompile(`^(\d*|\d{1,3}(,\d{3})+)(\.\d+)?$`)

// ParseCurrency converts a dollar string such as "$1,234.50" into cents.
func ParseCurrency(input string) (int64, error) {
	cleaned := strings.TrimSpace(input)
	cleaned = strings.TrimPrefix(cleaned, "$")
	if cleaned == "" {
		return 0, fmt.Errorf("empty currency value")
	}

	if strings.HasPrefix(cleaned, "-") {
		return 0, fmt.Errorf("negative currency value %q", input)
	}

	if !currencyPattern.MatchString(cleaned) {
		return 0, fmt.Errorf("invalid currency value %q", input)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(cleaned, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("invalid currency value %q: %w", input, err)
	}

	if !amount.Equal(amount.Round(2)) {
		return 0, fmt.Errorf("currency value %q has more than two decimal places", input)
	}

	cents := amount.Shift(2)
	if cents.GreaterThan(decimal.NewFromInt(MaxParsedCents)) {
		return 0, fmt.Errorf("currency value %q exceeds %s", input, FormatCurrency(MaxParsedCents))
	}

	return cents.IntPart(), nil
}

// FormatCurrency renders cents as "$1,234.50".
func FormatCurrency(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	fixed := decimal.New(cents, -2).StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	return fmt.Sprintf("%s$%s.%s", sign, groupThousands(whole), frac)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}

	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}

	return b.String()
}
