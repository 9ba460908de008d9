package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"
)

const refreshTokenCookie = "refresh_token"

type AuthService interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (models.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

type AuthHandler struct {
	Auth          AuthService
	SecureCookies bool
	RefreshTTL    time.Duration
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.Auth.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	h.setAuthCookies(c, resp)
	c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.Auth.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	h.setAuthCookies(c, resp)
	c.JSON(http.StatusOK, resp)
}

// Refresh accepts the refresh token in the body or the refresh_token cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie(refreshTokenCookie)
	}
	if req.RefreshToken == "" {
		fail(c, utils.ValidationError(map[string]string{"refresh_token": "is required"}))
		return
	}

	resp, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}

	h.setAuthCookies(c, resp)
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req models.RefreshRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie(refreshTokenCookie)
	}

	if err := h.Auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		fail(c, err)
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// CSRFToken issues the double-submit token used by cookie-authenticated clients.
func (h *AuthHandler) CSRFToken(c *gin.Context) {
	token := middleware.IssueCSRFToken(c, h.SecureCookies)
	c.JSON(http.StatusOK, gin.H{"csrf_token": token})
}

func (h *AuthHandler) setAuthCookies(c *gin.Context, resp models.AuthResponse) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, resp.AccessToken, resp.ExpiresIn, "/", "", h.SecureCookies, true)
	c.SetCookie(refreshTokenCookie, resp.RefreshToken, int(h.RefreshTTL.Seconds()), "/api/v1/auth", "", h.SecureCookies, true)
}

func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", h.SecureCookies, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/api/v1/auth", "", h.SecureCookies, true)
	c.SetCookie(middleware.CSRFCookie, "", -1, "/", "", h.SecureCookies, false)
}
