package fanout

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

func event(orgID, interID string) domain.VerdictEvent {
	return domain.VerdictEvent{
		Interaction: domain.Interaction{ID: interID, OrganizationID: orgID},
		Verdict:     domain.Verdict{InteractionID: interID, Status: domain.StatusApproved},
	}
}

func collect(t *testing.T, ch <-chan domain.VerdictEvent, n int) []domain.VerdictEvent {
	t.Helper()
	out := make([]domain.VerdictEvent, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for events: got %d of %d", len(out), n)
		}
	}
	return out
}

func TestHubDeliversInPublishOrder(t *testing.T) {
	hub := NewHub(HubConfig{OrgBuffer: 64, SubBuffer: 64}, zap.NewNop())
	defer hub.Close()

	sub, err := hub.Subscribe("org-1", "sub-a")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		hub.Publish(event("org-1", fmt.Sprintf("i-%02d", i)))
	}

	got := collect(t, sub.C, 10)
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("i-%02d", i), ev.Interaction.ID)
	}
}

func TestHubIsolatesOrganizations(t *testing.T) {
	hub := NewHub(HubConfig{}, zap.NewNop())
	defer hub.Close()

	subA, err := hub.Subscribe("org-a", "sub-1")
	require.NoError(t, err)
	subB, err := hub.Subscribe("org-b", "sub-2")
	require.NoError(t, err)

	hub.Publish(event("org-a", "only-for-a"))

	got := collect(t, subA.C, 1)
	assert.Equal(t, "only-for-a", got[0].Interaction.ID)

	select {
	case ev := <-subB.C:
		t.Fatalf("org-b received foreign event %s", ev.Interaction.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastsToAllOrgSubscribers(t *testing.T) {
	hub := NewHub(HubConfig{}, zap.NewNop())
	defer hub.Close()

	sub1, _ := hub.Subscribe("org-1", "sub-1")
	sub2, _ := hub.Subscribe("org-1", "sub-2")

	hub.Publish(event("org-1", "i-1"))

	assert.Equal(t, "i-1", collect(t, sub1.C, 1)[0].Interaction.ID)
	assert.Equal(t, "i-1", collect(t, sub2.C, 1)[0].Interaction.ID)
}

// Медленный подписчик теряет события, но не блокирует быстрых.
func TestHubSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(HubConfig{OrgBuffer: 256, SubBuffer: 2}, zap.NewNop())
	defer hub.Close()

	slow, _ := hub.Subscribe("org-1", "slow")
	fast, _ := hub.Subscribe("org-1", "fast")

	// slow никто не вычитывает, его буфер (2) переполнится
	for i := 0; i < 20; i++ {
		hub.Publish(event("org-1", fmt.Sprintf("i-%02d", i)))
	}

	got := collect(t, fast.C, 20)
	assert.Len(t, got, 20)
	assert.LessOrEqual(t, len(slow.C), 2)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(HubConfig{}, zap.NewNop())
	defer hub.Close()

	sub, _ := hub.Subscribe("org-1", "sub-1")
	hub.Unsubscribe("org-1", "sub-1")

	_, ok := <-sub.C
	assert.False(t, ok, "канал должен быть закрыт после Unsubscribe")
	assert.Equal(t, 0, hub.SubscriberCount("org-1"))
}

func TestHubPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(HubConfig{}, zap.NewNop())
	defer hub.Close()

	// Не должно паниковать и блокировать
	hub.Publish(event("org-ghost", "i-1"))
}

func TestHubSubscribeAfterCloseFails(t *testing.T) {
	hub := NewHub(HubConfig{}, zap.NewNop())
	hub.Close()

	_, err := hub.Subscribe("org-1", "sub-1")
	assert.ErrorIs(t, err, ErrHubClosed)
}
