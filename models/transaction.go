package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	CategoryID   *string         `json:"category_id"`
	CategoryName *string         `json:"category_name,omitempty"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Date         Date            `json:"date"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TransactionRequest is the body of POST and PUT.
type TransactionRequest struct {
	Type        string           `json:"type" binding:"required,oneof=income expense"`
	Amount      *decimal.Decimal `json:"amount" binding:"required"`
	Date        *Date            `json:"date" binding:"required"`
	CategoryID  *string          `json:"category_id" binding:"omitempty,uuid"`
	Description string           `json:"description" binding:"max=500"`
}

// Validate checks what struct tags cannot express.
func (r TransactionRequest) Validate() map[string]string {
	fields := map[string]string{}
	if r.Amount != nil && !r.Amount.IsPositive() {
		fields["amount"] = "must be greater than 0"
	}
	if r.Amount != nil && !r.Amount.Equal(r.Amount.Round(2)) {
		fields["amount"] = "must have at most 2 decimal places"
	}
	return fieldsOrNil(fields)
}

// PatchTransactionRequest carries only the fields to change.
// An empty category_id string clears the category.
type PatchTransactionRequest struct {
	Type        *string          `json:"type" binding:"omitempty,oneof=income expense"`
	Amount      *decimal.Decimal `json:"amount"`
	Date        *Date            `json:"date"`
	CategoryID  *string          `json:"category_id" binding:"omitempty,max=36"`
	Description *string          `json:"description" binding:"omitempty,max=500"`
}

func (r PatchTransactionRequest) Validate() map[string]string {
	fields := map[string]string{}
	if r.Amount != nil && !r.Amount.IsPositive() {
		fields["amount"] = "must be greater than 0"
	}
	return fieldsOrNil(fields)
}

// Apply merges the patch into a full request.
func (r PatchTransactionRequest) Apply(tx Transaction) TransactionRequest {
	amount := tx.Amount
	date := tx.Date
	req := TransactionRequest{
		Type:        tx.Type,
		Amount:      &amount,
		Date:        &date,
		CategoryID:  tx.CategoryID,
		Description: tx.Description,
	}
	if r.Type != nil {
		req.Type = *r.Type
	}
	if r.Amount != nil {
		req.Amount = r.Amount
	}
	if r.Date != nil {
		req.Date = r.Date
	}
	if r.CategoryID != nil {
		if *r.CategoryID == "" {
			req.CategoryID = nil
		} else {
			req.CategoryID = r.CategoryID
		}
	}
	if r.Description != nil {
		req.Description = *r.Description
	}
	return req
}

type TransactionQuery struct {
	PageQuery
	Type       string `form:"type" binding:"omitempty,oneof=income expense"`
	CategoryID string `form:"category_id" binding:"omitempty,uuid"`
	From       string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To         string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// TransactionResult is returned by create and update.
type TransactionResult struct {
	Transaction Transaction   `json:"transaction"`
	Alerts      []BudgetAlert `json:"alerts"`
}

func fieldsOrNil(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	return fields
}
