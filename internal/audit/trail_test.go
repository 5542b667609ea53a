package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]Event
}

func (m *memStorage) WriteBatch(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(events))
	copy(cp, events)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *memStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestTrailFlushesOnBatchSize(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, TrailConfig{BufferSize: 100, BatchSize: 5, FlushInterval: time.Hour}, zap.NewNop())
	trail.Start()

	for i := 0; i < 5; i++ {
		trail.Record(Event{ID: "e", Action: ActionVerify, OrganizationID: "org-1"})
	}

	require.Eventually(t, func() bool { return store.total() == 5 }, time.Second, 10*time.Millisecond)
	trail.Stop()
}

func TestTrailFlushesOnTicker(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, TrailConfig{BufferSize: 100, BatchSize: 100, FlushInterval: 20 * time.Millisecond}, zap.NewNop())
	trail.Start()

	trail.Record(Event{ID: "e1", Action: ActionRuleCreate})
	trail.Record(Event{ID: "e2", Action: ActionRuleUpdate})

	require.Eventually(t, func() bool { return store.total() == 2 }, time.Second, 10*time.Millisecond)
	trail.Stop()
}

// Stop обязан дописать всё, что осталось в очереди (drain).
func TestTrailDrainsOnStop(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, TrailConfig{BufferSize: 1000, BatchSize: 1000, FlushInterval: time.Hour}, zap.NewNop())
	trail.Start()

	for i := 0; i < 37; i++ {
		trail.Record(Event{ID: "e", Action: ActionVerify})
	}
	trail.Stop()

	assert.Equal(t, 37, store.total())
}

func TestTrailRecordAfterStopIsDropped(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, TrailConfig{}, zap.NewNop())
	trail.Start()
	trail.Stop()

	// Не должно паниковать и ничего не пишет
	trail.Record(Event{ID: "late", Action: ActionExport})
	assert.Equal(t, 0, store.total())
}

func TestTrailStampsTimestamp(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, TrailConfig{BufferSize: 10, BatchSize: 1, FlushInterval: time.Hour}, zap.NewNop())
	trail.Start()

	trail.Record(Event{ID: "e", Action: ActionVerify})
	require.Eventually(t, func() bool { return store.total() == 1 }, time.Second, 10*time.Millisecond)
	trail.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.False(t, store.batches[0][0].Timestamp.IsZero())
}
