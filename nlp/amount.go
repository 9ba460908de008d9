package nlp

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Amount confidence tiers.
const (
	confidenceUnit     = 0.95
	confidenceCurrency = 0.85
	confidenceBare     = 0.7
)

type amountPattern struct {
	re         *regexp.Regexp
	multiplier float64
	confidence float64
	// grouped allows "50.000" to mean fifty thousand.
	grouped bool
}

const (
	decimalNumber = `\d+(?:[.,]\d+)?`
	groupedNumber = `\d{1,3}(?:[.,]\d{3})+|\d+(?:[.,]\d+)?`
)

// Checked in order against normalized text; the first pattern with a match wins.
var amountPatterns = []amountPattern{
	{re: regexp.MustCompile(`(` + decimalNumber + `)\s*(?:trieu|tr)\b`), multiplier: 1_000_000, confidence: confidenceUnit},
	{re: regexp.MustCompile(`(` + decimalNumber + `)\s*(?:nghin|ngan|k)\b`), multiplier: 1_000, confidence: confidenceUnit},
	{re: regexp.MustCompile(`(` + groupedNumber + `)\s*(?:vnd|dong|d)\b`), multiplier: 1, confidence: confidenceCurrency, grouped: true},
	{re: regexp.MustCompile(`(` + groupedNumber + `)`), multiplier: 1, confidence: confidenceBare, grouped: true},
}

var thousandsGrouping = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+$`)

func extractAmount(normalized string) (float64, float64) {
	for _, p := range amountPatterns {
		m := p.re.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		value, ok := parseNumber(m[1], p.grouped)
		if !ok || value <= 0 {
			continue
		}
		return math.Round(value*p.multiplier*100) / 100, p.confidence
	}
	return 0, 0
}

func parseNumber(raw string, grouped bool) (float64, bool) {
	if grouped && thousandsGrouping.MatchString(raw) {
		raw = strings.NewReplacer(".", "", ",", "").Replace(raw)
	} else {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
