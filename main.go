package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hade267/doan-VND-sub000/config"
	"github.com/hade267/doan-VND-sub000/handlers"
	"github.com/hade267/doan-VND-sub000/middleware"
	"github.com/hade267/doan-VND-sub000/nlp"
	"github.com/hade267/doan-VND-sub000/routes"
	"github.com/hade267/doan-VND-sub000/services"
	"github.com/hade267/doan-VND-sub000/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := utils.SetupLogger(utils.LogConfig{
		Level:      cfg.LogLevel,
		Production: cfg.IsProduction(),
		Output:     os.Stdout,
	})

	db, err := config.InitDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.RunMigrations(ctx, db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	// Stores
	users := services.NewUserStore(db)
	sessions := services.NewSessionStore(db)
	categories := services.NewCategoryStore(db)
	transactions := services.NewTransactionStore(db)
	nlpLogs := services.NewNlpLogStore(db)
	nlpConfigs := services.NewNlpConfigStore(db)

	// NLP
	configCache := nlp.NewConfigCache(services.NewConfigLoader(nlpConfigs, cfg.NLP.ConfigPath), cfg.NLPConfigTTL(), logger)
	resultCache := nlp.NewResultCache(cfg.AICacheTTL())
	if cfg.NLP.ConfigPath != "" {
		stopWatch, err := nlp.WatchConfigFile(cfg.NLP.ConfigPath, configCache.Invalidate, logger)
		if err != nil {
			logger.Warn("nlp config file is not watched", "path", cfg.NLP.ConfigPath, "error", err)
		} else {
			defer stopWatch()
		}
	}

	// Services
	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.AccessTTL())

	allowedOrigins := []string{"http://localhost:3000"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	wsHandler := handlers.NewWSHandler(logger, allowedOrigins)
	defer wsHandler.Close()

	authService := services.NewAuthService(users, sessions, tokens, cfg.RefreshTTL(), cfg.DataEncryptionKey, logger)
	budgetService := services.NewBudgetService(services.NewBudgetStore(db), categories, transactions)
	emailService := services.NewEmailService(cfg.ResendAPIKey, cfg.EmailFrom, cfg.FrontendURL, users)
	transactionService := services.NewTransactionService(transactions, categories, budgetService,
		wsHandler, emailService, logger)
	aiParser := services.NewClaudeParser(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL, logger)
	nlpService := services.NewNLPService(configCache, resultCache, aiParser, services.NewQuotaStore(db),
		nlpLogs, categories, transactionService, services.NLPOptions{
			DailyQuota:    cfg.AI.DailyQuota,
			AutoThreshold: cfg.AI.AutoThreshold,
			Location:      cfg.Location(),
		}, logger)
	reportService := services.NewReportService(services.NewReportStore(db), cfg.Location())

	if !aiParser.Enabled() {
		logger.Warn("ANTHROPIC_API_KEY not set, AI parsing disabled")
	}
	if !emailService.Enabled() {
		logger.Warn("RESEND_API_KEY not set, budget alert emails disabled")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	go limiter.RunCleanup(ctx, 5*time.Minute)
	go runPeriodically(ctx, time.Minute, func() {
		if n := resultCache.Sweep(); n > 0 {
			logger.Debug("expired AI cache entries removed", "count", n)
		}
	})
	go runPeriodically(ctx, time.Hour, func() {
		purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		n, err := sessions.PurgeExpired(purgeCtx)
		if err != nil {
			logger.Error("session cleanup failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("expired sessions removed", "count", n)
		}
	})

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(cfg.IsProduction(), logger),
		middleware.ErrorHandler(cfg.IsProduction(), logger),
		middleware.RequestLogger(logger),
	)

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.CSRFHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	secure := cfg.IsProduction()
	authHandler := &handlers.AuthHandler{Auth: authService, SecureCookies: secure, RefreshTTL: cfg.RefreshTTL()}
	h := routes.Handlers{
		Auth: authHandler,
		User: &handlers.UserHandler{Users: authService, Auth: authHandler},
		Admin: &handlers.AdminHandler{
			Users:     authService,
			NLPConfig: services.NewNLPConfigService(nlpConfigs, configCache),
			NLPLogs:   nlpService,
			NLPStats:  nlpLogs,
		},
		Category:    &handlers.CategoryHandler{Categories: categories},
		Transaction: &handlers.TransactionHandler{Transactions: transactionService},
		Budget:      &handlers.BudgetHandler{Budgets: budgetService},
		NLP:         &handlers.NLPHandler{NLP: nlpService},
		Report:      &handlers.ReportHandler{Reports: reportService},
		WS:          wsHandler,
	}

	routes.Setup(router.Group("/api/v1"), h,
		[]gin.HandlerFunc{limiter.Middleware()},
		[]gin.HandlerFunc{middleware.AuthMiddleware(tokens, users), middleware.CSRF(), limiter.Middleware()},
		[]gin.HandlerFunc{middleware.RequireAdmin()},
	)

	router.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status, code := "healthy", http.StatusOK
		if err := db.PingContext(pingCtx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func runPeriodically(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
