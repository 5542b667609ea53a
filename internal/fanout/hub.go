package fanout

/*
Файл hub.go реализует In-memory Hub для живой доставки вердиктов
подписчикам организации (WebSocket-клиенты консоли, внутренние потребители).

Архитектура:
- Per-Org Dispatcher: на каждую организацию поднимается своя горутина
  диспетчера с bounded-очередью. Порядок событий внутри организации
  сохраняется, организации не влияют друг на друга.
- Load Shedding: медленный подписчик не тормозит остальных. Если его
  личный буфер переполнен, событие для него сбрасывается, а факт сброса
  фиксируется в логе и метрике на стороне вызывающего.
- At-least-once: хаб сам по себе не дедуплицирует, потребитель обязан
  быть идемпотентным по InteractionID.
*/

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

var ErrHubClosed = errors.New("fanout: hub is closed")

type HubConfig struct {
	// Размер очереди диспетчера организации
	OrgBuffer int
	// Размер личного буфера подписчика
	SubBuffer int
	// OnDrop дергается на каждом сброшенном событии (метрика fanout_dropped)
	OnDrop func()
}

type Subscription struct {
	ID    string
	OrgID string
	// C отдает события подписчику. Канал закрывает хаб (при Unsubscribe или Close).
	C chan domain.VerdictEvent

	// Защита от отправки в закрытый канал при гонке deliver/Unsubscribe
	mu     sync.Mutex
	closed bool
}

// trySend кладет событие в буфер подписчика без блокировки.
// Возвращает false, если буфер полон или подписка уже закрыта.
func (s *Subscription) trySend(ev domain.VerdictEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true // закрытому подписчику сброс не считается потерей
	}
	select {
	case s.C <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.C)
	}
}

type orgDispatcher struct {
	queue chan domain.VerdictEvent
	done  chan struct{}
}

type Hub struct {
	mu          sync.RWMutex
	subs        map[string]map[string]*Subscription // orgID -> subID -> sub
	dispatchers map[string]*orgDispatcher
	cfg         HubConfig
	logger      *zap.Logger
	closed      bool
	wg          sync.WaitGroup
}

func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	if cfg.OrgBuffer <= 0 {
		cfg.OrgBuffer = 1024
	}
	if cfg.SubBuffer <= 0 {
		cfg.SubBuffer = 64
	}
	return &Hub{
		subs:        make(map[string]map[string]*Subscription),
		dispatchers: make(map[string]*orgDispatcher),
		cfg:         cfg,
		logger:      logger.With(zap.String("mod", "fanout")),
	}
}

// Subscribe регистрирует нового живого подписчика организации.
func (h *Hub) Subscribe(orgID, subID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscription{
		ID:    subID,
		OrgID: orgID,
		C:     make(chan domain.VerdictEvent, h.cfg.SubBuffer),
	}

	if h.subs[orgID] == nil {
		h.subs[orgID] = make(map[string]*Subscription)
	}
	h.subs[orgID][subID] = sub

	// Лениво поднимаем диспетчера организации
	if _, ok := h.dispatchers[orgID]; !ok {
		d := &orgDispatcher{
			queue: make(chan domain.VerdictEvent, h.cfg.OrgBuffer),
			done:  make(chan struct{}),
		}
		h.dispatchers[orgID] = d
		h.wg.Add(1)
		go h.dispatch(orgID, d)
	}

	h.logger.Info("subscriber attached",
		zap.String("organization_id", orgID),
		zap.String("subscription_id", subID),
	)
	return sub, nil
}

// Unsubscribe снимает подписчика и закрывает его канал.
func (h *Hub) Unsubscribe(orgID, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	orgSubs, ok := h.subs[orgID]
	if !ok {
		return
	}
	sub, ok := orgSubs[subID]
	if !ok {
		return
	}
	delete(orgSubs, subID)
	sub.shutdown()
	if len(orgSubs) == 0 {
		delete(h.subs, orgID)
	}
}

// Publish кладет событие в очередь диспетчера организации. Неблокирующий:
// при переполнении очереди событие сбрасывается (Load Shedding), вызывающий
// Hot Path никогда не ждет подписчиков.
func (h *Hub) Publish(ev domain.VerdictEvent) {
	h.mu.RLock()
	d, ok := h.dispatchers[ev.Interaction.OrganizationID]
	closed := h.closed
	h.mu.RUnlock()

	if closed || !ok {
		// Нет живых подписчиков, доставлять некому
		return
	}

	select {
	case d.queue <- ev:
	case <-d.done:
	default:
		h.logger.Warn("fanout_queue_overflow",
			zap.String("organization_id", ev.Interaction.OrganizationID),
			zap.String("interaction_id", ev.Interaction.ID),
		)
		if h.cfg.OnDrop != nil {
			h.cfg.OnDrop()
		}
	}
}

// dispatch последовательно раздает события всем подписчикам организации,
// сохраняя порядок публикации.
func (h *Hub) dispatch(orgID string, d *orgDispatcher) {
	defer h.wg.Done()

	for {
		select {
		case ev := <-d.queue:
			h.deliver(orgID, ev)
		case <-d.done:
			// Дочитываем остатки очереди перед выходом
			for {
				select {
				case ev := <-d.queue:
					h.deliver(orgID, ev)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) deliver(orgID string, ev domain.VerdictEvent) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[orgID]))
	for _, sub := range h.subs[orgID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if !sub.trySend(ev) {
			// Личный буфер подписчика забит, событие для него теряется.
			// Остальные подписчики при этом получают событие без задержки.
			h.logger.Warn("subscriber_overflow: event dropped",
				zap.String("organization_id", orgID),
				zap.String("subscription_id", sub.ID),
				zap.String("interaction_id", ev.Interaction.ID),
			)
			if h.cfg.OnDrop != nil {
				h.cfg.OnDrop()
			}
		}
	}
}

// SubscriberCount возвращает число живых подписчиков организации.
func (h *Hub) SubscriberCount(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orgID])
}

// Close останавливает диспетчеров и закрывает каналы всех подписчиков.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, d := range h.dispatchers {
		close(d.done)
	}
	h.mu.Unlock()

	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for orgID, orgSubs := range h.subs {
		for subID, sub := range orgSubs {
			sub.shutdown()
			delete(orgSubs, subID)
		}
		delete(h.subs, orgID)
	}
	h.logger.Info("fanout hub closed")
}
