package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
)

// Verifier — ядро движка с точки зрения HTTP-слоя
type Verifier interface {
	Submit(ctx context.Context, inter domain.Interaction) (*domain.Verdict, error)
}

type VerifyHandler struct {
	engine Verifier
	logger *zap.Logger
}

func NewVerifyHandler(engine Verifier, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{engine: engine, logger: logger.Named("verify-handler")}
}

// Submit принимает взаимодействие на проверку.
// POST /v1/verify
func (h *VerifyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var inter domain.Interaction
	if err := json.NewDecoder(r.Body).Decode(&inter); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Токен ограничивает, за какую организацию можно сабмитить
	claims := auth.ClaimsFromContext(r.Context())
	if !auth.CanAccessOrganization(claims, inter.OrganizationID) {
		http.Error(w, "Token does not grant access to this organization", http.StatusForbidden)
		return
	}

	verdict, err := h.engine.Submit(r.Context(), inter)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMalformedInteraction):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrInvalidOrganization):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.logger.Error("submit failed", zap.Error(err))
			http.Error(w, "Verification failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verdict)
}
