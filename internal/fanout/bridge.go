package fanout

/*
Файл bridge.go связывает локальный Hub с Redis pub/sub, чтобы вердикты
доставлялись подписчикам всех инстансов движка, а не только того, который
обработал запрос.

Семантика at-least-once: при переподключении к Redis события, прошедшие
в окно разрыва, не доставляются локальным подписчикам другого инстанса.
Свои события каждый инстанс отдает в Hub напрямую и пропускает их же,
когда они возвращаются из Redis (маркер instance_id).

Сетевой round-trip до Redis не входит в путь подачи: Publish только
кладет конверт в outbox, трансляцией занимается горутина broadcast
(запускается из Listen). Переполненный outbox — сброс события для
удаленных инстансов, локальная доставка при этом уже состоялась.
*/

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/infra"
)

const (
	bridgeOutboxSize = 256
	broadcastTimeout = 2 * time.Second
)

type envelope struct {
	InstanceID string              `json:"instance_id"`
	Event      domain.VerdictEvent `json:"event"`
}

type Bridge struct {
	hub        *Hub
	rdb        *redis.Client
	logger     *zap.Logger
	instanceID string
	outbox     chan []byte
}

func NewBridge(hub *Hub, rdb *redis.Client, logger *zap.Logger) *Bridge {
	return &Bridge{
		hub:        hub,
		rdb:        rdb,
		logger:     logger.With(zap.String("mod", "fanout_bridge")),
		instanceID: uuid.New().String(),
		outbox:     make(chan []byte, bridgeOutboxSize),
	}
}

// Publish отдает событие локальным подписчикам и ставит его в очередь
// на трансляцию остальным инстансам. Не блокируется ни на Redis, ни на
// переполненном outbox.
func (b *Bridge) Publish(ctx context.Context, ev domain.VerdictEvent) {
	b.hub.Publish(ev)

	if b.rdb == nil {
		// Single-instance режим, без Redis
		return
	}

	payload, err := json.Marshal(envelope{InstanceID: b.instanceID, Event: ev})
	if err != nil {
		b.logger.Error("verdict event marshal failed", zap.Error(err))
		return
	}

	select {
	case b.outbox <- payload:
	default:
		b.logger.Warn("broadcast outbox full, event dropped for remote instances",
			zap.String("interaction_id", ev.Interaction.ID))
	}
}

// Listen запускает трансляцию outbox в Redis и подписывается на канал
// вердиктов, прокачивая чужие события в локальный Hub. Переживает
// разрывы соединения. Блокируется до отмены контекста.
func (b *Bridge) Listen(ctx context.Context) {
	if b.rdb == nil {
		return
	}
	go b.broadcast(ctx)
	infra.ListenResilient(ctx, b.rdb, b.logger, infra.RedisChanVerdicts,
		func() error { return nil },
		b.handleBusMessage,
	)
}

// broadcast вычитывает outbox и публикует конверты в Redis. Каждая
// публикация ограничена собственным таймаутом, чтобы зависший коннект
// не копил очередь бесконечно долго.
func (b *Bridge) broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.outbox:
			pubCtx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
			err := b.rdb.Publish(pubCtx, infra.RedisChanVerdicts, payload).Err()
			cancel()
			if err != nil {
				b.logger.Error("verdict event broadcast failed", zap.Error(err))
			}
		}
	}
}

func (b *Bridge) handleBusMessage(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("malformed verdict event on bus", zap.Error(err))
		return
	}
	if env.InstanceID == b.instanceID {
		// Наше же событие, локально уже доставлено
		return
	}
	b.hub.Publish(env.Event)
}
