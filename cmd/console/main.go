package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
	"github.com/xela07ax/veritas-trust-engine/internal/console/handler"
	"github.com/xela07ax/veritas-trust-engine/internal/console/server"
	"github.com/xela07ax/veritas-trust-engine/internal/console/service"
	"github.com/xela07ax/veritas-trust-engine/internal/infra"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
	"github.com/xela07ax/veritas-trust-engine/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer pool.Close()

	ruleRepo := postgres.NewRuleRepo(pool)
	orgRepo := postgres.NewOrgRepo(pool)
	userRepo := postgres.NewUserRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)
	interactionRepo := postgres.NewInteractionRepo(pool, logger)

	// 3. Audit Trail консоли (изменения правил, экспорт)
	trail := audit.NewTrail(auditRepo, audit.TrailConfig{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
	}, logger)
	trail.Start()

	// 4. Ключи: приватный для выдачи токенов, публичный для их проверки
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("auth private key load failed", zap.Error(err))
	}
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("auth public key load failed", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	// 5. Сервисы и хендлеры (Dependency Injection)
	authService := service.NewAuthService(userRepo, privKey, cfg.Auth.TokenTTL)
	ruleService := service.NewRuleService(ruleRepo, rdb, trail, logger)
	dashService := service.NewDashboardService(interactionRepo)
	auditService := service.NewAuditService(auditRepo)

	consoleSrv := server.NewConsoleServer(cfg, logger, validator,
		handler.NewAuthHandler(authService),
		handler.NewRulesHandler(ruleService),
		handler.NewOrgsHandler(orgRepo),
		handler.NewDashboardHandler(dashService),
		handler.NewAuditHandler(auditService),
	)

	// 6. HTTP Server + Graceful Shutdown
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console api started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("console api stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	cancel()
	trail.Stop()
	logger.Info("console api exited properly")
}
