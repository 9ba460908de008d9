package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hade267/doan-VND-sub000/utils"
)

const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// CSRF enforces the double-submit check for cookie-authenticated unsafe
// requests. It must run after AuthMiddleware; bearer requests pass through.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isCookieAuth(c) || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		cookie, err := c.Cookie(CSRFCookie)
		header := c.GetHeader(CSRFHeader)
		if err != nil || cookie == "" || header == "" ||
			subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			Abort(c, utils.Forbidden("Invalid CSRF token"))
			return
		}
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// IssueCSRFToken sets a fresh csrf_token cookie and returns its value.
// The cookie is readable by scripts so the SPA can echo it in the header.
func IssueCSRFToken(c *gin.Context, secure bool) string {
	token := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CSRFCookie, token, 12*3600, "/", "", secure, false)
	return token
}
