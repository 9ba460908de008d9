package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

const (
	AlertNone     = ""
	AlertWarning  = "warning"
	AlertExceeded = "exceeded"

	// UsageOK is reported by the usage endpoint when below the warning threshold.
	UsageOK = "ok"
)

type Budget struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name,omitempty"`
	Period       string          `json:"period"`
	AmountLimit  decimal.Decimal `json:"amount_limit"`
	StartDate    Date            `json:"start_date"`
	EndDate      *Date           `json:"end_date"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type BudgetRequest struct {
	CategoryID  string           `json:"category_id" binding:"required,uuid"`
	Period      string           `json:"period" binding:"required,oneof=daily weekly monthly yearly"`
	AmountLimit *decimal.Decimal `json:"amount_limit" binding:"required"`
	StartDate   *Date            `json:"start_date" binding:"required"`
	EndDate     *Date            `json:"end_date"`
	IsActive    *bool            `json:"is_active"`
}

func (r BudgetRequest) Validate() map[string]string {
	fields := map[string]string{}
	if r.AmountLimit != nil && !r.AmountLimit.IsPositive() {
		fields["amount_limit"] = "must be greater than 0"
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(r.StartDate.Time) {
		fields["end_date"] = "must not be before start_date"
	}
	return fieldsOrNil(fields)
}

type BudgetUsage struct {
	Budget      Budget          `json:"budget"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	Percentage  float64         `json:"percentage"`
	Status      string          `json:"status"`
}

// BudgetAlert is raised when a transaction pushes a budget past a threshold.
type BudgetAlert struct {
	BudgetID     string          `json:"budget_id"`
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Period       string          `json:"period"`
	Limit        decimal.Decimal `json:"limit"`
	Spent        decimal.Decimal `json:"spent"`
	Projected    decimal.Decimal `json:"projected"`
	Percentage   float64         `json:"percentage"`
	Status       string          `json:"status"`
	WindowStart  time.Time       `json:"window_start"`
	WindowEnd    time.Time       `json:"window_end"`
}
