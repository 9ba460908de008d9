package utils

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
)

func TestFromDBError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"no rows", sql.ErrNoRows, http.StatusNotFound},
		{"wrapped no rows", fmt.Errorf("get budget: %w", sql.ErrNoRows), http.StatusNotFound},
		{"unique violation", &pq.Error{Code: "23505"}, http.StatusConflict},
		{"foreign key violation", &pq.Error{Code: "23503"}, http.StatusBadRequest},
		{"check violation", &pq.Error{Code: "23514"}, http.StatusBadRequest},
		{"other pq error", &pq.Error{Code: "40001"}, http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"already app error", Forbidden("nope"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromDBError(tt.err, "Budget not found")
			var appErr *AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *AppError, got %T", err)
			}
			if appErr.Status != tt.status {
				t.Errorf("status = %d, want %d", appErr.Status, tt.status)
			}
		})
	}
}

func TestFromDBErrorNil(t *testing.T) {
	if err := FromDBError(nil, "x"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(errors.New("connection refused"))
	if err.Message != "Internal server error" {
		t.Errorf("message = %q", err.Message)
	}
	if !errors.Is(err, err.Err) {
		t.Error("Internal should unwrap to its cause")
	}
}
