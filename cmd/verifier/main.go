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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
	"github.com/xela07ax/veritas-trust-engine/internal/detector"
	"github.com/xela07ax/veritas-trust-engine/internal/fanout"
	"github.com/xela07ax/veritas-trust-engine/internal/infra"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
	"github.com/xela07ax/veritas-trust-engine/internal/repository/postgres"
	"github.com/xela07ax/veritas-trust-engine/internal/rules"
	"github.com/xela07ax/veritas-trust-engine/internal/server"
	"github.com/xela07ax/veritas-trust-engine/internal/server/handler"
	"github.com/xela07ax/veritas-trust-engine/internal/verdict"
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

	// Контекст жизненного цикла фоновых горутин: SIGTERM остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
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

	interactionRepo := postgres.NewInteractionRepo(pool, logger)
	ruleRepo := postgres.NewRuleRepo(pool)
	orgRepo := postgres.NewOrgRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)

	// 3. Audit Trail (пакетная асинхронная запись)
	trail := audit.NewTrail(auditRepo, audit.TrailConfig{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
	}, logger)
	trail.Start()

	// 4. Кэш правил: холодная загрузка + инвалидация по Redis pub/sub
	ruleCache := rules.NewCache(ruleRepo, rdb, logger)
	if err := ruleCache.Refresh(appCtx); err != nil {
		logger.Fatal("rule cache cold load failed", zap.Error(err))
	}
	go ruleCache.StartListener(appCtx)

	// 5. Метрики
	reg := prometheus.NewRegistry()
	metrics := verdict.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 6. Детектор галлюцинаций: внешний скорер или встроенная эвристика,
	// в любом случае за обвязкой надежности (rate limit, CB, retries)
	var scorer detector.Scorer
	if cfg.Engine.DetectorURL != "" {
		scorer = detector.NewHTTPScorer(cfg.Engine.DetectorURL, logger)
	} else {
		scorer = detector.NewHeuristic(logger)
	}
	scorer = detector.NewReliability(scorer, detector.ReliabilityConfig{
		Timeout:       cfg.Engine.DetectorTimeout,
		RPS:           cfg.Engine.DetectorRateLimit,
		Burst:         cfg.Engine.DetectorBurst,
		CBMaxRequests: cfg.Engine.CBMaxRequests,
		CBInterval:    cfg.Engine.CBInterval,
		CBTimeout:     cfg.Engine.CBTimeout,
	})

	// 7. Fan-out: локальный хаб + мост в Redis для остальных инстансов
	hub := fanout.NewHub(fanout.HubConfig{
		OrgBuffer: cfg.Engine.FanoutOrgBuffer,
		SubBuffer: cfg.Engine.FanoutSubBuffer,
		OnDrop:    metrics.FanoutDropped.Inc,
	}, logger)
	bridge := fanout.NewBridge(hub, rdb, logger)
	go bridge.Listen(appCtx)

	// 8. Ядро движка
	engine := verdict.NewEngine(
		interactionRepo,
		orgRepo,
		ruleCache,
		scorer,
		bridge,
		trail,
		metrics,
		cfg.Engine.ViolationPrecedence,
		logger,
	)

	// 9. Auth (проверка RS256 токенов, выданных консолью)
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("auth public key load failed", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	// 10. HTTP Server
	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.NewServer(cfg, logger, validator,
			handler.NewVerifyHandler(engine, logger),
			handler.NewInteractionsHandler(interactionRepo, logger),
			handler.NewExportHandler(interactionRepo, trail, logger),
			handler.NewEventsHandler(hub, logger),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("verification engine started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("verification engine stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	cancel()     // Останавливаем слушателей Redis
	hub.Close()  // Закрываем подписчиков fan-out
	trail.Stop() // Final Flush аудита
	logger.Info("verification engine exited properly")
}
