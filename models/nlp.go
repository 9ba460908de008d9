package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EngineRule = "rule"
	EngineAI   = "ai"
	EngineAuto = "auto"
)

type NlpLog struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	TransactionID *string         `json:"transaction_id"`
	InputText     string          `json:"input_text"`
	ParsedJSON    json.RawMessage `json:"parsed_json"`
	IsSuccess     bool            `json:"is_success"`
	Corrections   json.RawMessage `json:"corrections"`
	Engine        string          `json:"engine"`
	Confidence    *float64        `json:"confidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ParseRequest struct {
	Text   string `json:"text" binding:"required,max=500"`
	Engine string `json:"engine" binding:"omitempty,oneof=rule ai auto"`
}

// ParsedTransaction is the API shape of a parser candidate.
type ParsedTransaction struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	CategoryID  *string         `json:"category_id"`
	Date        Date            `json:"date"`
	Description string          `json:"description"`
	Confidence  Confidence      `json:"confidence"`
}

type Confidence struct {
	Type     float64 `json:"type"`
	Amount   float64 `json:"amount"`
	Category float64 `json:"category"`
}

type ParseResponse struct {
	Candidate ParsedTransaction `json:"candidate"`
	Engine    string            `json:"engine"`
	LogID     string            `json:"log_id"`
	Cached    bool              `json:"cached"`
	Warnings  []string          `json:"warnings"`
}

// NLPTransactionRequest parses text and creates a transaction. Explicit
// fields override the parsed values and are recorded as corrections.
type NLPTransactionRequest struct {
	Text        string           `json:"text" binding:"required,max=500"`
	Engine      string           `json:"engine" binding:"omitempty,oneof=rule ai auto"`
	Type        *string          `json:"type" binding:"omitempty,oneof=income expense"`
	Amount      *decimal.Decimal `json:"amount"`
	Date        *Date            `json:"date"`
	CategoryID  *string          `json:"category_id" binding:"omitempty,uuid"`
	Description *string          `json:"description" binding:"omitempty,max=500"`
}

func (r NLPTransactionRequest) Validate() map[string]string {
	fields := map[string]string{}
	if r.Amount != nil && !r.Amount.IsPositive() {
		fields["amount"] = "must be greater than 0"
	}
	return fieldsOrNil(fields)
}

type NLPTransactionResponse struct {
	TransactionResult
	Parse ParseResponse `json:"parse"`
}

type CorrectionRequest struct {
	Corrections map[string]interface{} `json:"corrections" binding:"required"`
}

type NlpLogQuery struct {
	PageQuery
	Success *bool `form:"success"`
}

type QuotaResponse struct {
	AIEnabled bool   `json:"ai_enabled"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	Date      string `json:"date"`
}

type NLPStats struct {
	Total             int            `json:"total"`
	Successful        int            `json:"successful"`
	SuccessRate       float64        `json:"success_rate"`
	ByEngine          map[string]int `json:"by_engine"`
	AverageConfidence float64        `json:"average_confidence"`
	Corrected         int            `json:"corrected"`
}
