package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/console/handler"
	"github.com/xela07ax/veritas-trust-engine/internal/infra"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка RS256 токенов
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler  *handler.AuthHandler      // /auth/token
	rulesHandler *handler.RulesHandler     // /v1/rules
	orgsHandler  *handler.OrgsHandler      // /v1/organizations
	dashHandler  *handler.DashboardHandler // /api/v1/dashboard
	auditHandler *handler.AuditHandler     // /v1/audit
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	rulesH *handler.RulesHandler,
	orgsH *handler.OrgsHandler,
	dashH *handler.DashboardHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		cfg:           cfg,
		authValidator: validator,
		authHandler:   authH,
		rulesHandler:  rulesH,
		orgsHandler:   orgsH,
		dashHandler:   dashH,
		auditHandler:  auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Комплаенс-правила (append-only versioning)
		r.Route("/v1/rules", func(r chi.Router) {
			r.Get("/", s.rulesHandler.List)
			r.Post("/", s.rulesHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.rulesHandler.Get)
				r.Put("/", s.rulesHandler.Update)          // Новая версия
				r.Delete("/", s.rulesHandler.Deactivate)   // Версия с active=false
				r.Get("/versions", s.rulesHandler.History) // Вся цепочка версий
			})
		})

		// Организации
		r.Route("/v1/organizations", func(r chi.Router) {
			r.Get("/", s.orgsHandler.List)
			r.Get("/{id}", s.orgsHandler.Get)
		})

		// Audit Trail
		r.Get("/v1/audit", s.auditHandler.GetEvents)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
