package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
)

type TransactionService interface {
	List(ctx context.Context, userID string, q models.TransactionQuery) (models.Page[models.Transaction], error)
	Get(ctx context.Context, userID, id string) (models.Transaction, error)
	Create(ctx context.Context, userID string, req models.TransactionRequest) (models.TransactionResult, error)
	Update(ctx context.Context, userID, id string, req models.TransactionRequest) (models.TransactionResult, error)
	Patch(ctx context.Context, userID, id string, patch models.PatchTransactionRequest) (models.TransactionResult, error)
	Delete(ctx context.Context, userID, id string) error
}

type TransactionHandler struct {
	Transactions TransactionService
}

func (h *TransactionHandler) List(c *gin.Context) {
	var q models.TransactionQuery
	if !bindQuery(c, &q) {
		return
	}

	page, err := h.Transactions.List(c.Request.Context(), middleware.GetUserID(c), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *TransactionHandler) Get(c *gin.Context) {
	tx, err := h.Transactions.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// Create stores the transaction and returns it with any budget alerts it raised.
func (h *TransactionHandler) Create(c *gin.Context) {
	var req models.TransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.Transactions.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *TransactionHandler) Update(c *gin.Context) {
	var req models.TransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.Transactions.Update(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TransactionHandler) Patch(c *gin.Context) {
	var req models.PatchTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.Transactions.Patch(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TransactionHandler) Delete(c *gin.Context) {
	if err := h.Transactions.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
