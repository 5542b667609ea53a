package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/fanout"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

type EventsHandler struct {
	hub    *fanout.Hub
	logger *zap.Logger
}

func NewEventsHandler(hub *fanout.Hub, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, logger: logger.Named("events-handler")}
}

// Stream поднимает WebSocket и гонит подписчику вердикты его организации
// по мере появления. Replay истории нет: подключившийся видит только то,
// что случилось после подключения.
// GET /v1/events?organization_id=
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
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

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	subID := uuid.New().String()
	sub, err := h.hub.Subscribe(orgID, subID)
	if err != nil {
		h.logger.Warn("subscribe rejected", zap.Error(err))
		return
	}
	defer h.hub.Unsubscribe(orgID, subID)

	h.logger.Info("websocket subscriber connected",
		zap.String("organization_id", orgID),
		zap.String("subscription_id", subID),
	)

	// Reader-горутина нужна только чтобы заметить закрытие со стороны клиента
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// Хаб останавливается (shutdown процесса)
				return
			}
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				h.logger.Info("websocket subscriber dropped",
					zap.String("subscription_id", subID),
					zap.Error(err),
				)
				return
			}
		case <-pinger.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			h.logger.Info("websocket client disconnected", zap.String("subscription_id", subID))
			return
		case <-r.Context().Done():
			return
		}
	}
}
