package model

import (
	"math"
	"strings"

	"golang.org/x/text/language"
)

// NormalizeCountryCode trims and upper-cases an ISO country code.
func NormalizeCountryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeLanguageCode trims and lower-cases a language code.
func NormalizeLanguageCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// NormalizeLanguageCodes lower-cases a list of language codes, preserving
// order. Returns nil for an empty input so omitted and empty lists persist
// the same way.
func NormalizeLanguageCodes(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = NormalizeLanguageCode(c)
	}
	return out
}

// ValidLanguageCode reports whether the code parses as a BCP 47 language tag.
func ValidLanguageCode(code string) bool {
	_, err := language.Parse(strings.TrimSpace(code))
	return err == nil
}

// Round2 rounds a currency or ratio value to two decimal places, matching
// the NUMERIC(n,2) columns it is stored in.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round1 rounds to one decimal place, matching NUMERIC(2,1) columns.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
