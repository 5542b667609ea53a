package audit

/*
Файл trail.go реализует Audit Trail — асинхронный сборщик служебных
событий движка верификации (вердикты, изменения правил, экспорты).

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят из Hot Path через неблокирующий
  канал, задержки БД не влияют на Response Time проверки.
- Batching & Efficiency: накопление в памяти и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита пачки.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью, финальный flush гарантирует отсутствие потерь при перезагрузке.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

type Recorder interface {
	Record(event Event)
}

type TrailConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type Trail struct {
	ch     chan Event
	repo   StorageInterface
	logger *zap.Logger
	cfg    TrailConfig
	wg     sync.WaitGroup
	// Атомарный флаг (0 - открыт, 1 - закрыт), защита от Record после остановки
	isClosed int32
}

func NewTrail(repo StorageInterface, cfg TrailConfig, logger *zap.Logger) *Trail {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:     make(chan Event, cfg.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit_trail")),
		cfg:    cfg,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	atomic.StoreInt32(&t.isClosed, 1)

	// Крошечная пауза, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	// Drain Pattern: завершение воркера происходит исключительно через закрытие входного канала
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит в обычный лог,
	// а не блокирует вызывающего
	select {
	case t.ch <- event:
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("organization_id", event.OrganizationID),
			zap.String("action", event.Action),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, t.cfg.BatchSize)
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст на shutdown уже может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(). Воркер сначала вычитал остатки очереди,
				// теперь делает финальный сброс и выходит.
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
