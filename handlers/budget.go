package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
)

type BudgetService interface {
	ListWithUsage(ctx context.Context, userID string) ([]models.BudgetUsage, error)
	Get(ctx context.Context, userID, id string) (models.Budget, error)
	UsageByID(ctx context.Context, userID, id string) (models.BudgetUsage, error)
	Create(ctx context.Context, userID string, req models.BudgetRequest) (models.Budget, error)
	Update(ctx context.Context, userID, id string, req models.BudgetRequest) (models.Budget, error)
	Delete(ctx context.Context, userID, id string) error
}

type BudgetHandler struct {
	Budgets BudgetService
}

// ============================================================================
// BUDGETS
// ============================================================================

// List returns every budget of the user with its usage in the current window.
func (h *BudgetHandler) List(c *gin.Context) {
	usages, err := h.Budgets.ListWithUsage(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, usages)
}

func (h *BudgetHandler) Get(c *gin.Context) {
	budget, err := h.Budgets.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, budget)
}

func (h *BudgetHandler) Create(c *gin.Context) {
	var req models.BudgetRequest
	if !bindJSON(c, &req) {
		return
	}

	budget, err := h.Budgets.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, budget)
}

func (h *BudgetHandler) Update(c *gin.Context) {
	var req models.BudgetRequest
	if !bindJSON(c, &req) {
		return
	}

	budget, err := h.Budgets.Update(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, budget)
}

func (h *BudgetHandler) Delete(c *gin.Context) {
	if err := h.Budgets.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ============================================================================
// USAGE
// ============================================================================

func (h *BudgetHandler) Usage(c *gin.Context) {
	usage, err := h.Budgets.UsageByID(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}
