package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/xela07ax/veritas-trust-engine/internal/console/service"
)

type DashboardHandler struct {
	service *service.DashboardService
}

func NewDashboardHandler(s *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: s}
}

// GetStats — сводка по проверкам организации.
// GET /api/v1/dashboard/stats?organization_id=&window=24h
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	orgID, ok := resolveOrg(w, r)
	if !ok {
		return
	}

	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "window must be a duration like 24h", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	stats, err := h.service.GetStats(r.Context(), orgID, window)
	if err != nil {
		http.Error(w, "Failed to collect stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
