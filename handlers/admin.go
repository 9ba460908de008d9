package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/nlp"
	"github.com/hade267/doan-VND-sub000/utils"
)

type AdminUserService interface {
	ListUsers(ctx context.Context, q models.PageQuery) (models.Page[models.User], error)
	AdminUpdateUser(ctx context.Context, adminID, targetID string, req models.AdminUpdateUserRequest) (models.User, error)
}

type NLPConfigService interface {
	Current(ctx context.Context) (nlp.Config, error)
	Replace(ctx context.Context, cfg nlp.Config, updatedBy string) (nlp.Config, error)
}

type NLPLogReader interface {
	Logs(ctx context.Context, userID string, q models.NlpLogQuery) (models.Page[models.NlpLog], error)
}

type NLPStatsReader interface {
	Stats(ctx context.Context) (models.NLPStats, error)
}

type AdminHandler struct {
	Users     AdminUserService
	NLPConfig NLPConfigService
	NLPLogs   NLPLogReader
	NLPStats  NLPStatsReader
}

// ============================================================================
// USERS
// ============================================================================

func (h *AdminHandler) ListUsers(c *gin.Context) {
	var q models.PageQuery
	if !bindQuery(c, &q) {
		return
	}

	page, err := h.Users.ListUsers(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req models.AdminUpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.Users.AdminUpdateUser(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ============================================================================
// NLP
// ============================================================================

func (h *AdminHandler) GetNLPConfig(c *gin.Context) {
	cfg, err := h.NLPConfig.Current(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *AdminHandler) UpdateNLPConfig(c *gin.Context) {
	var cfg nlp.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, middleware.BindError(err))
		return
	}

	saved, err := h.NLPConfig.Replace(c.Request.Context(), cfg, middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *AdminHandler) ListNLPLogs(c *gin.Context) {
	var q models.NlpLogQuery
	if !bindQuery(c, &q) {
		return
	}

	page, err := h.NLPLogs.Logs(c.Request.Context(), "", q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) GetNLPStats(c *gin.Context) {
	stats, err := h.NLPStats.Stats(c.Request.Context())
	if err != nil {
		fail(c, utils.Internal(err))
		return
	}
	c.JSON(http.StatusOK, stats)
}
