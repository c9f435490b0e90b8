package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/oryxcrm/branchgate/internal/auth"
	"github.com/oryxcrm/branchgate/internal/background"
	"github.com/oryxcrm/branchgate/internal/config"
	"github.com/oryxcrm/branchgate/internal/database"
	"github.com/oryxcrm/branchgate/internal/handlers"
	middlewareCustom "github.com/oryxcrm/branchgate/internal/middleware"
	"github.com/oryxcrm/branchgate/internal/ratelimit"
	"github.com/oryxcrm/branchgate/internal/repositories"
	"github.com/oryxcrm/branchgate/internal/routes"
	"github.com/oryxcrm/branchgate/internal/services"
	pkghttp "github.com/oryxcrm/branchgate/pkg/http"
	pkglogger "github.com/oryxcrm/branchgate/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Redis backs the per-IP failure counters
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)
	qrRepo := repositories.NewQRMasterRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Rate limiter over Redis
	limiter := ratelimit.NewRedisLoginLimiter(redisClient, ratelimit.Config{
		MaxFailures:   cfg.Access.MaxFailedAttempts,
		Window:        cfg.Access.FailureWindow,
		BlockDuration: cfg.Access.BlockDuration,
	})

	// Session issuer for allowed logins
	sessionIssuer := auth.NewSessionIssuer(cfg.Auth.SessionSecret, cfg.Auth.SessionExpiry)

	// AWS SES delivers escalation notifications
	mailer, err := services.NewSESMailer(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	escalationService := services.NewEscalationService(userRepo, attemptRepo, mailer, logger)
	accessService := services.NewAccessService(
		userRepo, deviceRepo, attemptRepo, limiter, sessionIssuer, escalationService,
		logger, auditLogger,
	)
	deviceService := services.NewDeviceService(deviceRepo, qrRepo, logger, auditLogger)
	qrService := services.NewQRMasterService(qrRepo, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(accessService, ipConfig)
	deviceHandler := handlers.NewDeviceHandler(deviceService)
	qrHandler := handlers.NewQRMasterHandler(qrService)

	// Redelivery loop retries escalations that failed to send
	redelivery := background.NewRedeliveryManager(
		attemptRepo, escalationService, logger, cfg.Access.EscalationRetryEvery,
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, deviceHandler, qrHandler, sessionIssuer)

	// Health check with database and Redis
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The limiter fails open, so a Redis outage degrades rather
			// than breaks the service.
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"degraded","database":"up","redis":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up","redis":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start redelivery loop
	redeliveryCtx, redeliveryCancel := context.WithCancel(context.Background())
	defer redeliveryCancel()

	go redelivery.Start(redeliveryCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	redeliveryCancel()
	redelivery.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
