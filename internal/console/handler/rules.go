package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/veritas-trust-engine/internal/console/service"
	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
)

type RulesHandler struct {
	service *service.RuleService
}

func NewRulesHandler(s *service.RuleService) *RulesHandler {
	return &RulesHandler{service: s}
}

// resolveOrg достает организацию из query или токена и проверяет доступ
func resolveOrg(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID := r.URL.Query().Get("organization_id")
	claims := auth.ClaimsFromContext(r.Context())
	if orgID == "" && claims != nil {
		orgID = claims.OrganizationID
	}
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return "", false
	}
	if !auth.CanAccessOrganization(claims, orgID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return "", false
	}
	return orgID, true
}

func actorID(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		return claims.UserID
	}
	return "system"
}

// List возвращает текущее состояние правил организации.
// GET /v1/rules
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrg(w, r)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), orgID)
	if err != nil {
		http.Error(w, "Failed to fetch rules", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []domain.Rule{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// Get возвращает старшую версию правила.
// GET /v1/rules/{id}
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrg(w, r)
	if !ok {
		return
	}

	rule, err := h.service.Get(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Rule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch rule", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rule)
}

// History — полная цепочка версий правила для аудита.
// GET /v1/rules/{id}/versions
func (h *RulesHandler) History(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrg(w, r)
	if !ok {
		return
	}

	versions, err := h.service.History(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Failed to fetch rule history", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(versions)
}

// Create заводит новое правило (версия 1).
// POST /v1/rules
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrg(w, r)
	if !ok {
		return
	}

	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rule.OrganizationID = orgID

	created, err := h.service.Create(r.Context(), actorID(r), rule)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// Update пишет новую версию правила.
// PUT /v1/rules/{id}
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrg(w, r)
	if !ok {
		return
	}

	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rule.OrganizationID = orgID
	rule.RuleID = chi.URLParam(r, "id")

	updated, err := h.service.Update(r.Context(), actorID(r), rule)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Rule not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// Deactivate выключает правило новой версией с active=false.
// DELETE /v1/rules/{id}
func (h *RulesHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrg(w, r)
	if !ok {
		return
	}

	deactivated, err := h.service.Deactivate(r.Context(), actorID(r), orgID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Rule not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deactivated)
}
