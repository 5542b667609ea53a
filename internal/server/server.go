package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/infra"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
	"github.com/xela07ax/veritas-trust-engine/internal/server/handler"
)

// Server — HTTP-поверхность движка верификации (Hot Path + выгрузки).
type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка RS256 токенов
	authValidator auth.TokenValidator

	verifyHandler       *handler.VerifyHandler       // POST /v1/verify
	interactionsHandler *handler.InteractionsHandler // GET /v1/interactions
	exportHandler       *handler.ExportHandler       // GET /v1/audit/export
	eventsHandler       *handler.EventsHandler       // GET /v1/events (WS)
}

func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	verifyH *handler.VerifyHandler,
	interactionsH *handler.InteractionsHandler,
	exportH *handler.ExportHandler,
	eventsH *handler.EventsHandler,
) *Server {
	s := &Server{
		router:              chi.NewRouter(),
		logger:              logger.Named("verifier-api"),
		cfg:                 cfg,
		authValidator:       validator,
		verifyHandler:       verifyH,
		interactionsHandler: interactionsH,
		exportHandler:       exportH,
		eventsHandler:       eventsH,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Hot Path: прием взаимодействий на верификацию
		r.Post("/v1/verify", s.verifyHandler.Submit)

		// Чтение истории
		r.Route("/v1/interactions", func(r chi.Router) {
			r.Get("/", s.interactionsHandler.List)
			r.Get("/{id}", s.interactionsHandler.Get)
		})

		// Аудиторские выгрузки
		r.Get("/v1/audit/export", s.exportHandler.Export)

		// Live-поток вердиктов
		r.Get("/v1/events", s.eventsHandler.Stream)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
