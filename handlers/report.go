package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
)

type ReportService interface {
	Summary(ctx context.Context, userID string, q models.ReportQuery) (models.Summary, error)
	Chart(ctx context.Context, userID string, q models.ReportQuery) ([]byte, error)
}

type ReportHandler struct {
	Reports ReportService
}

func (h *ReportHandler) Summary(c *gin.Context) {
	var q models.ReportQuery
	if !bindQuery(c, &q) {
		return
	}

	summary, err := h.Reports.Summary(c.Request.Context(), middleware.GetUserID(c), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Chart renders expenses by category as a PNG bar chart.
func (h *ReportHandler) Chart(c *gin.Context) {
	var q models.ReportQuery
	if !bindQuery(c, &q) {
		return
	}

	png, err := h.Reports.Chart(c.Request.Context(), middleware.GetUserID(c), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
