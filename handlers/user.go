package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
)

type UserService interface {
	Profile(ctx context.Context, userID string) (models.User, error)
	UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (models.User, error)
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error
	DeleteAccount(ctx context.Context, userID string, req models.DeleteAccountRequest) error
	SetupTOTP(ctx context.Context, userID string) (models.TOTPSetupResponse, error)
	VerifyTOTP(ctx context.Context, userID, code string) error
	DisableTOTP(ctx context.Context, userID string, req models.DisableTOTPRequest) error
}

type UserHandler struct {
	Users UserService
	Auth  *AuthHandler
}

// ============================================================================
// PROFILE MANAGEMENT
// ============================================================================

func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.Users.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.Users.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.Users.ChangePassword(c.Request.Context(), middleware.GetUserID(c), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

func (h *UserHandler) DeleteAccount(c *gin.Context) {
	var req models.DeleteAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.Users.DeleteAccount(c.Request.Context(), middleware.GetUserID(c), req); err != nil {
		fail(c, err)
		return
	}
	if h.Auth != nil {
		h.Auth.clearAuthCookies(c)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}

// ============================================================================
// 2FA
// ============================================================================

func (h *UserHandler) Setup2FA(c *gin.Context) {
	resp, err := h.Users.SetupTOTP(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) Verify2FA(c *gin.Context) {
	var req models.VerifyTOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.Users.VerifyTOTP(c.Request.Context(), middleware.GetUserID(c), req.Code); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Two-factor authentication enabled"})
}

func (h *UserHandler) Disable2FA(c *gin.Context) {
	var req models.DisableTOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.Users.DisableTOTP(c.Request.Context(), middleware.GetUserID(c), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Two-factor authentication disabled"})
}
