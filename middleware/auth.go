package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"
)

const (
	AccessTokenCookie = "access_token"

	userIDKey     = "user_id"
	userRoleKey   = "user_role"
	authMethodKey = "auth_method"

	authBearer = "bearer"
	authCookie = "cookie"
)

// UserLookup loads the current state of the authenticated user.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// AuthMiddleware accepts a bearer token or the access_token cookie. The
// user's current role and activation state are read from the store so
// deactivation takes effect immediately.
func AuthMiddleware(tokens *utils.TokenManager, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, method := extractToken(c)
		if token == "" {
			Abort(c, utils.Unauthorized("Authentication required"))
			return
		}

		claims, err := tokens.ParseAccessToken(token)
		if err != nil {
			Abort(c, utils.Unauthorized("Invalid or expired token"))
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			Abort(c, utils.Unauthorized("Invalid or expired token"))
			return
		}
		if !user.IsActive {
			Abort(c, utils.Forbidden("Account is disabled"))
			return
		}

		c.Set(userIDKey, user.ID)
		c.Set(userRoleKey, user.Role)
		c.Set(authMethodKey, method)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, string) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1]), authBearer
		}
		return "", ""
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie, authCookie
	}
	return "", ""
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserRole(c) != models.RoleAdmin {
			Abort(c, utils.Forbidden("Admin access required"))
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func GetUserRole(c *gin.Context) string {
	return c.GetString(userRoleKey)
}

func isCookieAuth(c *gin.Context) bool {
	return c.GetString(authMethodKey) == authCookie
}
