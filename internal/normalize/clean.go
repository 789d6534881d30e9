package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownCategory is the category assigned when none can be derived.
const UnknownCategory = "Unknown"

var (
	// textDisallowed matches everything except word chars, whitespace and . , ! ? -
	textDisallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?-]`)
	// categoryDisallowed matches everything except word chars, whitespace and -
	categoryDisallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	// currencySymbols are stripped from price strings before parsing.
	currencySymbols = strings.NewReplacer("R", "", "$", "", "€", "", "£", "")
)

// collapse joins the whitespace-separated fields of s with single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanText collapses whitespace and removes characters outside the
// word/whitespace/basic-punctuation set.
func CleanText(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	cleaned := textDisallowed.ReplaceAllString(collapse(raw), "")
	cleaned = collapse(cleaned)
	if cleaned == "" {
		return "", false
	}
	return cleaned, true
}

// CleanURL trims raw and defaults the scheme to https. It does not check
// that the URL resolves.
func CleanURL(raw string) (string, bool) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", false
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u, true
}

// CleanPrice converts v into a non-negative amount rounded to two decimals.
func CleanPrice(v RawValue) (float64, bool) {
	switch v.kind {
	case kindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return 0, false
		}
		return roundPrice(decimal.NewFromFloat(v.num))
	case kindText:
		return parsePrice(v.text)
	default:
		return 0, false
	}
}

// parsePrice strips currency symbols and whitespace and parses what is left.
// Several joined amounts such as "R49.99 R59.99" collapse into one token
// that does not parse, so the price is absent.
func parsePrice(s string) (float64, bool) {
	compact := strings.Join(strings.Fields(currencySymbols.Replace(s)), "")
	if compact == "" {
		return 0, false
	}
	d, ok := parseAmount(compact)
	if !ok {
		return 0, false
	}
	return roundPrice(d)
}

// parseAmount treats a comma as a grouping separator when a dot is also
// present, and as the decimal separator otherwise.
func parseAmount(s string) (decimal.Decimal, bool) {
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func roundPrice(d decimal.Decimal) (float64, bool) {
	if d.IsNegative() {
		return 0, false
	}
	f, _ := d.Round(2).Float64()
	return f, true
}

// CleanCategory title-cases a category label. Punctuation is replaced by
// spaces so that "fresh/fruit" becomes "Fresh Fruit". It never returns an
// empty string.
func CleanCategory(raw string) string {
	cleaned := collapse(categoryDisallowed.ReplaceAllString(raw, " "))
	if cleaned == "" {
		return UnknownCategory
	}
	return cases.Title(language.Und).String(cleaned)
}

// JoinValues trims each value, drops empties and joins the rest with single
// spaces. Multi-valued rule matches go through here before normalization.
func JoinValues(values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
