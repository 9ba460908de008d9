package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
)

type NLPService interface {
	Parse(ctx context.Context, userID, text, engine string) (models.ParseResponse, error)
	CreateTransaction(ctx context.Context, userID string, req models.NLPTransactionRequest) (models.NLPTransactionResponse, error)
	AddCorrections(ctx context.Context, userID, logID string, corrections map[string]interface{}) (models.NlpLog, error)
	Logs(ctx context.Context, userID string, q models.NlpLogQuery) (models.Page[models.NlpLog], error)
	Quota(ctx context.Context, userID string) (models.QuotaResponse, error)
}

type NLPHandler struct {
	NLP NLPService
}

// Parse turns free text into a transaction candidate without storing it.
func (h *NLPHandler) Parse(c *gin.Context) {
	var req models.ParseRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.NLP.Parse(c.Request.Context(), middleware.GetUserID(c), req.Text, req.Engine)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *NLPHandler) CreateTransaction(c *gin.Context) {
	var req models.NLPTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.NLP.CreateTransaction(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *NLPHandler) Correct(c *gin.Context) {
	var req models.CorrectionRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.NLP.AddCorrections(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Corrections)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *NLPHandler) Logs(c *gin.Context) {
	var q models.NlpLogQuery
	if !bindQuery(c, &q) {
		return
	}

	page, err := h.NLP.Logs(c.Request.Context(), middleware.GetUserID(c), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *NLPHandler) Quota(c *gin.Context) {
	quota, err := h.NLP.Quota(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quota)
}
