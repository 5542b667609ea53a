package rules

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"go.uber.org/zap"
)

type fakeSource struct {
	rules []domain.Rule
}

func (f *fakeSource) AllRules(ctx context.Context) ([]domain.Rule, error) {
	return f.rules, nil
}

func versioned(org, id string, version int, active bool, createdAt time.Time) domain.Rule {
	return domain.Rule{
		RuleID:         id,
		OrganizationID: org,
		Version:        version,
		Severity:       domain.SeverityWarn,
		Category:       domain.CategoryPolicy,
		Pattern:        json.RawMessage(`{"type":"keyword","keywords":["x"]}`),
		Active:         active,
		CreatedAt:      createdAt,
	}
}

func TestCacheActiveAsOfPointInTime(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	t2 := t0.Add(48 * time.Hour)

	src := &fakeSource{rules: []domain.Rule{
		versioned("org-a", "r-1", 1, true, t0),
		versioned("org-a", "r-1", 2, true, t2), // Правка через двое суток
		versioned("org-a", "r-2", 1, true, t1),
	}}

	c := NewCache(src, nil, zap.NewNop())
	require.NoError(t, c.Refresh(context.Background()))

	// На момент t0+1h видна только v1 правила r-1
	frozen := c.ActiveAsOf("org-a", t0.Add(time.Hour))
	require.Len(t, frozen, 1)
	assert.Equal(t, 1, frozen[0].Version)

	// На момент t1+1h добавилось r-2, r-1 всё еще v1
	frozen = c.ActiveAsOf("org-a", t1.Add(time.Hour))
	require.Len(t, frozen, 2)
	assert.Equal(t, "r-1", frozen[0].RuleID)
	assert.Equal(t, 1, frozen[0].Version)

	// После t2 r-1 биндится на v2
	frozen = c.ActiveAsOf("org-a", t2.Add(time.Hour))
	require.Len(t, frozen, 2)
	assert.Equal(t, 2, frozen[0].Version)
}

// Деактивация — это новая версия с active=false, а не мутация старой.
// Прошлые моменты времени продолжают видеть правило.
func TestCacheDeactivationIsVersioned(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	src := &fakeSource{rules: []domain.Rule{
		versioned("org-a", "r-1", 1, true, t0),
		versioned("org-a", "r-1", 2, false, t1), // Выключили
	}}

	c := NewCache(src, nil, zap.NewNop())
	require.NoError(t, c.Refresh(context.Background()))

	assert.Len(t, c.ActiveAsOf("org-a", t0.Add(time.Minute)), 1)
	assert.Empty(t, c.ActiveAsOf("org-a", t1.Add(time.Minute)))
}

func TestCacheOrganizationIsolation(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{rules: []domain.Rule{
		versioned("org-a", "r-1", 1, true, t0),
		versioned("org-b", "r-9", 1, true, t0),
	}}

	c := NewCache(src, nil, zap.NewNop())
	require.NoError(t, c.Refresh(context.Background()))

	frozen := c.ActiveAsOf("org-a", t0.Add(time.Minute))
	require.Len(t, frozen, 1)
	assert.Equal(t, "r-1", frozen[0].RuleID)

	assert.True(t, c.HasOrganization("org-b"))
	assert.False(t, c.HasOrganization("org-unknown"))
	assert.Empty(t, c.ActiveAsOf("org-unknown", t0.Add(time.Minute)))
}
