package nlp

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Confidence holds a 0..1 certainty score per extracted field.
type Confidence struct {
	Type     float64 `json:"type"`
	Amount   float64 `json:"amount"`
	Category float64 `json:"category"`
}

// Mean is the unweighted average of the three field scores.
func (c Confidence) Mean() float64 {
	return (c.Type + c.Amount + c.Category) / 3
}

// Candidate is a structured transaction extracted from free text.
type Candidate struct {
	Type        string     `json:"type"`
	Amount      float64    `json:"amount"`
	Category    string     `json:"category"`
	Date        time.Time  `json:"date"`
	Description string     `json:"description"`
	Confidence  Confidence `json:"confidence"`
}

// HasAmount reports whether an amount was found.
func (c Candidate) HasAmount() bool {
	return c.Amount > 0
}

type keywordMatcher []*regexp.Regexp

func (m keywordMatcher) count(text string) int {
	n := 0
	for _, re := range m {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}

type categoryMatcher struct {
	rule     CategoryRule
	keywords keywordMatcher
}

// Parser is a compiled Config. It is immutable and safe for concurrent use.
type Parser struct {
	cfg             Config
	income          keywordMatcher
	expense         keywordMatcher
	categories      []categoryMatcher
	defaultCategory string
}

// NewParser validates cfg and compiles its keyword lists.
func NewParser(cfg Config) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid nlp config: %w", err)
	}

	p := &Parser{
		cfg:             cfg,
		income:          compileKeywords(cfg.IncomeKeywords),
		expense:         compileKeywords(cfg.ExpenseKeywords),
		defaultCategory: cfg.FallbackCategory(),
	}
	for _, rule := range cfg.Categories {
		p.categories = append(p.categories, categoryMatcher{
			rule:     rule,
			keywords: compileKeywords(rule.Keywords),
		})
	}
	return p, nil
}

// Config returns the configuration the parser was compiled from.
func (p *Parser) Config() Config {
	return p.cfg
}

// CategoryType returns the type configured for a category name, if any.
func (p *Parser) CategoryType(name string) (string, bool) {
	n := Normalize(name)
	for _, c := range p.categories {
		if Normalize(c.rule.Name) == n {
			return c.rule.Type, true
		}
	}
	return "", false
}

func compileKeywords(words []string) keywordMatcher {
	var m keywordMatcher
	for _, w := range words {
		w = Normalize(w)
		if w == "" {
			continue
		}
		parts := strings.Fields(w)
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		m = append(m, regexp.MustCompile(`\b`+strings.Join(parts, `\s+`)+`\b`))
	}
	return m
}

// Parse extracts a candidate from text. now anchors relative dates.
func (p *Parser) Parse(text string, now time.Time) Candidate {
	normalized := Normalize(text)

	c := Candidate{
		Description: strings.TrimSpace(text),
		Date:        extractDate(normalized, now),
	}
	c.Type, c.Confidence.Type = p.detectType(normalized)
	c.Amount, c.Confidence.Amount = extractAmount(normalized)
	c.Category, c.Confidence.Category = p.detectCategory(normalized)
	return c
}

func (p *Parser) detectType(normalized string) (string, float64) {
	income := p.income.count(normalized)
	expense := p.expense.count(normalized)

	switch {
	case income > expense:
		return TypeIncome, ratio(income)
	case expense > income:
		return TypeExpense, ratio(expense)
	default:
		return TypeExpense, 0.2
	}
}

func (p *Parser) detectCategory(normalized string) (string, float64) {
	best, bestCount := "", 0
	for _, c := range p.categories {
		// strict > keeps the first category on ties
		if n := c.keywords.count(normalized); n > bestCount {
			best, bestCount = c.rule.Name, n
		}
	}
	if bestCount == 0 {
		return p.defaultCategory, 0
	}
	return best, ratio(bestCount)
}

func ratio(matches int) float64 {
	return min(1, float64(matches)/3)
}

func extractDate(normalized string, now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case strings.Contains(normalized, "hom qua"):
		return day.AddDate(0, 0, -1)
	case strings.Contains(normalized, "hom kia"):
		return day.AddDate(0, 0, -2)
	default:
		return day
	}
}
