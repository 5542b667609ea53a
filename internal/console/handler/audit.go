package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
	"github.com/xela07ax/veritas-trust-engine/internal/console/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetEvents — последние события Audit Trail организации.
// GET /v1/audit?organization_id=&limit=
func (h *AuditHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrg(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.service.FetchEvents(r.Context(), orgID, limit)
	if err != nil {
		http.Error(w, "Failed to fetch audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
