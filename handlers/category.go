package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
)

type CategoryService interface {
	List(ctx context.Context, userID, categoryType string) ([]models.Category, error)
	Get(ctx context.Context, userID, id string) (models.Category, error)
	Create(ctx context.Context, userID string, req models.CategoryRequest) (models.Category, error)
	Update(ctx context.Context, userID, id string, req models.CategoryRequest) (models.Category, error)
	Delete(ctx context.Context, userID, id string) error
}

type CategoryHandler struct {
	Categories CategoryService
}

// List returns the user's own categories together with the shared defaults.
func (h *CategoryHandler) List(c *gin.Context) {
	var q models.CategoryQuery
	if !bindQuery(c, &q) {
		return
	}

	categories, err := h.Categories.List(c.Request.Context(), middleware.GetUserID(c), q.Type)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *CategoryHandler) Get(c *gin.Context) {
	category, err := h.Categories.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *CategoryHandler) Create(c *gin.Context) {
	var req models.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.Categories.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *CategoryHandler) Update(c *gin.Context) {
	var req models.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.Categories.Update(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *CategoryHandler) Delete(c *gin.Context) {
	if err := h.Categories.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
