package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/export"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
)

// InteractionReader — чтение проверенных взаимодействий
type InteractionReader interface {
	GetByID(ctx context.Context, orgID, id string) (*domain.Interaction, *domain.Verdict, error)
	Range(ctx context.Context, f export.Filter, limit, offset int) ([]domain.VerdictEvent, error)
}

type InteractionsHandler struct {
	repo   InteractionReader
	logger *zap.Logger
}

func NewInteractionsHandler(repo InteractionReader, logger *zap.Logger) *InteractionsHandler {
	return &InteractionsHandler{repo: repo, logger: logger.Named("interactions-handler")}
}

// List листает взаимодействия организации за период.
// GET /v1/interactions?organization_id=&from=&to=&status=&limit=&offset=
func (h *InteractionsHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")

	claims := auth.ClaimsFromContext(r.Context())
	if orgID == "" && claims != nil {
		orgID = claims.OrganizationID
	}
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return
	}
	if !auth.CanAccessOrganization(claims, orgID) {
		http.Error(w, "Token does not grant access to this organization", http.StatusForbidden)
		return
	}

	filter, err := parseRangeFilter(r, orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	events, err := h.repo.Range(r.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("interactions range failed", zap.Error(err))
		http.Error(w, "Failed to fetch interactions", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []domain.VerdictEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// Get возвращает одно взаимодействие с вердиктом.
// GET /v1/interactions/{id}
func (h *InteractionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orgID := r.URL.Query().Get("organization_id")

	claims := auth.ClaimsFromContext(r.Context())
	if orgID == "" && claims != nil {
		orgID = claims.OrganizationID
	}
	if !auth.CanAccessOrganization(claims, orgID) {
		http.Error(w, "Token does not grant access to this organization", http.StatusForbidden)
		return
	}

	inter, verdict, err := h.repo.GetByID(r.Context(), orgID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Interaction not found", http.StatusNotFound)
			return
		}
		h.logger.Error("interaction fetch failed", zap.Error(err))
		http.Error(w, "Failed to fetch interaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(domain.VerdictEvent{Interaction: *inter, Verdict: *verdict})
}

// parseRangeFilter разбирает границы среза. Обе включительные.
// Отсутствующая from = начало времен, отсутствующая to = сейчас.
func parseRangeFilter(r *http.Request, orgID string) (export.Filter, error) {
	f := export.Filter{OrganizationID: orgID, To: time.Now().UTC()}

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("from must be RFC3339")
		}
		f.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("to must be RFC3339")
		}
		f.To = t
	}
	if f.To.Before(f.From) {
		return f, errors.New("to must not precede from")
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		switch domain.VerdictStatus(raw) {
		case domain.StatusApproved, domain.StatusFlagged, domain.StatusBlocked:
			f.Status = domain.VerdictStatus(raw)
		default:
			return f, errors.New("unknown status filter")
		}
	}
	return f, nil
}
