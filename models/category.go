package models

import "time"

const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

type Category struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CategoryRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Type  string `json:"type" binding:"required,oneof=income expense"`
	Icon  string `json:"icon" binding:"max=50"`
	Color string `json:"color" binding:"max=20"`
}

type CategoryQuery struct {
	Type string `form:"type" binding:"omitempty,oneof=income expense"`
}
