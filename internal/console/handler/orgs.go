package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
)

// OrgProvider — чтение справочника организаций
type OrgProvider interface {
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
	ListOrganizations(ctx context.Context) ([]domain.Organization, error)
}

type OrgsHandler struct {
	repo OrgProvider
}

func NewOrgsHandler(repo OrgProvider) *OrgsHandler {
	return &OrgsHandler{repo: repo}
}

// List — все организации. Только для admin-токенов.
// GET /v1/organizations
func (h *OrgsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil || !claims.Scopes["admin"] {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	orgs, err := h.repo.ListOrganizations(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch organizations", http.StatusInternalServerError)
		return
	}
	if orgs == nil {
		orgs = []domain.Organization{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orgs)
}

// Get — одна организация (своя или любая для admin).
// GET /v1/organizations/{id}
func (h *OrgsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := auth.ClaimsFromContext(r.Context())
	if !auth.CanAccessOrganization(claims, id) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	org, err := h.repo.GetOrganization(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Organization not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch organization", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(org)
}
