package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/handlers"
)

// Handlers groups every HTTP handler mounted under /api/v1.
type Handlers struct {
	Auth        *handlers.AuthHandler
	User        *handlers.UserHandler
	Admin       *handlers.AdminHandler
	Category    *handlers.CategoryHandler
	Transaction *handlers.TransactionHandler
	Budget      *handlers.BudgetHandler
	NLP         *handlers.NLPHandler
	Report      *handlers.ReportHandler
	WS          *handlers.WSHandler
}

// SetupAuthRoutes sets up public authentication routes.
func SetupAuthRoutes(rg *gin.RouterGroup, h *handlers.AuthHandler) {
	rg.POST("/auth/register", h.Register)
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/refresh", h.Refresh)
	rg.POST("/auth/logout", h.Logout)
	rg.GET("/auth/csrf-token", h.CSRFToken)
}

// SetupUserRoutes sets up protected user routes.
func SetupUserRoutes(rg *gin.RouterGroup, h *handlers.UserHandler) {
	rg.GET("/user/profile", h.GetProfile)
	rg.PUT("/user/profile", h.UpdateProfile)
	rg.POST("/user/password", h.ChangePassword)
	rg.POST("/user/2fa/setup", h.Setup2FA)
	rg.POST("/user/2fa/verify", h.Verify2FA)
	rg.POST("/user/2fa/disable", h.Disable2FA)
	rg.DELETE("/user/account", h.DeleteAccount)
}

// SetupAdminRoutes expects rg to already require the admin role.
func SetupAdminRoutes(rg *gin.RouterGroup, h *handlers.AdminHandler) {
	rg.GET("/users", h.ListUsers)
	rg.PATCH("/users/:id", h.UpdateUser)
	rg.GET("/nlp-config", h.GetNLPConfig)
	rg.PUT("/nlp-config", h.UpdateNLPConfig)
	rg.GET("/nlp-logs", h.ListNLPLogs)
	rg.GET("/nlp-stats", h.GetNLPStats)
}

func SetupCategoryRoutes(rg *gin.RouterGroup, h *handlers.CategoryHandler) {
	rg.GET("/categories", h.List)
	rg.POST("/categories", h.Create)
	rg.GET("/categories/:id", h.Get)
	rg.PUT("/categories/:id", h.Update)
	rg.DELETE("/categories/:id", h.Delete)
}

func SetupTransactionRoutes(rg *gin.RouterGroup, h *handlers.TransactionHandler) {
	rg.GET("/transactions", h.List)
	rg.POST("/transactions", h.Create)
	rg.GET("/transactions/:id", h.Get)
	rg.PUT("/transactions/:id", h.Update)
	rg.PATCH("/transactions/:id", h.Patch)
	rg.DELETE("/transactions/:id", h.Delete)
}

// SetupBudgetRoutes sets up budget CRUD and usage routes.
func SetupBudgetRoutes(rg *gin.RouterGroup, h *handlers.BudgetHandler) {
	rg.GET("/budgets", h.List)
	rg.POST("/budgets", h.Create)
	rg.GET("/budgets/:id", h.Get)
	rg.PUT("/budgets/:id", h.Update)
	rg.DELETE("/budgets/:id", h.Delete)
	rg.GET("/budgets/:id/usage", h.Usage)
}

func SetupNLPRoutes(rg *gin.RouterGroup, h *handlers.NLPHandler) {
	rg.POST("/nlp/parse", h.Parse)
	rg.POST("/nlp/transactions", h.CreateTransaction)
	rg.POST("/nlp/logs/:id/corrections", h.Correct)
	rg.GET("/nlp/logs", h.Logs)
	rg.GET("/nlp/quota", h.Quota)
}

func SetupReportRoutes(rg *gin.RouterGroup, h *handlers.ReportHandler) {
	rg.GET("/reports/summary", h.Summary)
	rg.GET("/reports/chart.png", h.Chart)
}

// Setup mounts the whole API on v1. protected carries authentication,
// CSRF and rate limiting; admin additionally requires the admin role.
func Setup(v1 *gin.RouterGroup, h Handlers, public, protected, admin []gin.HandlerFunc) {
	SetupAuthRoutes(v1.Group("", public...), h.Auth)

	p := v1.Group("", protected...)
	{
		SetupUserRoutes(p, h.User)
		SetupCategoryRoutes(p, h.Category)
		SetupTransactionRoutes(p, h.Transaction)
		SetupBudgetRoutes(p, h.Budget)
		SetupNLPRoutes(p, h.NLP)
		SetupReportRoutes(p, h.Report)
		p.GET("/ws", h.WS.HandleWS)

		SetupAdminRoutes(p.Group("/admin", admin...), h.Admin)
	}
}
