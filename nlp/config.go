package nlp

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Transaction types produced by the parser.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// DefaultCategoryName is used when a config leaves default_category empty.
const DefaultCategoryName = "Khac"

//go:embed default_config.json
var defaultConfigJSON []byte

// CategoryRule associates a category name with the keywords that vote for it.
type CategoryRule struct {
	Name     string   `json:"name" koanf:"name"`
	Type     string   `json:"type" koanf:"type"`
	Keywords []string `json:"keywords" koanf:"keywords"`
}

// Config is the persisted, admin-editable heuristic configuration.
type Config struct {
	IncomeKeywords  []string       `json:"income_keywords" koanf:"income_keywords"`
	ExpenseKeywords []string       `json:"expense_keywords" koanf:"expense_keywords"`
	Categories      []CategoryRule `json:"categories" koanf:"categories"`
	DefaultCategory string         `json:"default_category" koanf:"default_category"`
}

// DefaultConfig returns the built-in keyword configuration.
func DefaultConfig() Config {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		panic(fmt.Sprintf("nlp: embedded default config is invalid: %v", err))
	}
	return cfg
}

// Validate reports every problem found in the config as a single error.
func (c Config) Validate() error {
	var errs []error

	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("categories: at least one category is required"))
	}

	seen := make(map[string]bool)
	for i, cat := range c.Categories {
		name := Normalize(cat.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("categories[%d].name: required", i))
			continue
		}
		key := cat.Type + "|" + name
		if seen[key] {
			errs = append(errs, fmt.Errorf("categories[%d].name: duplicate %q for type %s", i, cat.Name, cat.Type))
		}
		seen[key] = true

		if cat.Type != TypeIncome && cat.Type != TypeExpense {
			errs = append(errs, fmt.Errorf("categories[%d].type: must be income or expense", i))
		}
	}

	if len(c.IncomeKeywords) == 0 && len(c.ExpenseKeywords) == 0 {
		errs = append(errs, errors.New("income_keywords/expense_keywords: at least one keyword is required"))
	}

	return errors.Join(errs...)
}

// FallbackCategory is the category used when no keyword matches.
func (c Config) FallbackCategory() string {
	if strings.TrimSpace(c.DefaultCategory) == "" {
		return DefaultCategoryName
	}
	return c.DefaultCategory
}
