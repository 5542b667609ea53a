package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

// Фейковое append-only хранилище правил
type memRuleRepo struct {
	mu       sync.Mutex
	versions []domain.Rule
}

func (m *memRuleRepo) CreateVersion(ctx context.Context, rule domain.Rule) (*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	maxVer := 0
	for _, v := range m.versions {
		if v.OrganizationID == rule.OrganizationID && v.RuleID == rule.RuleID && v.Version > maxVer {
			maxVer = v.Version
		}
	}
	rule.Version = maxVer + 1
	rule.CreatedAt = time.Now().UTC()
	m.versions = append(m.versions, rule)
	return &rule, nil
}

func (m *memRuleRepo) GetRule(ctx context.Context, orgID, ruleID string) (*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.Rule
	for i := range m.versions {
		v := &m.versions[i]
		if v.OrganizationID == orgID && v.RuleID == ruleID && (best == nil || v.Version > best.Version) {
			best = v
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memRuleRepo) ListRules(ctx context.Context, orgID string) ([]domain.Rule, error) {
	seen := map[string]*domain.Rule{}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions {
		v := &m.versions[i]
		if v.OrganizationID != orgID {
			continue
		}
		if cur, ok := seen[v.RuleID]; !ok || v.Version > cur.Version {
			seen[v.RuleID] = v
		}
	}
	var out []domain.Rule
	for _, v := range seen {
		out = append(out, *v)
	}
	return out, nil
}

func (m *memRuleRepo) ListVersions(ctx context.Context, orgID, ruleID string) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Rule
	for _, v := range m.versions {
		if v.OrganizationID == orgID && v.RuleID == ruleID {
			out = append(out, v)
		}
	}
	return out, nil
}

type captureTrail struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureTrail) Record(ev audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func keywordPattern(t *testing.T, words ...string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"type": "keyword", "keywords": words})
	require.NoError(t, err)
	return raw
}

func newRuleService(repo *memRuleRepo, trail *captureTrail) *RuleService {
	// nil-redis: single-instance режим, без broadcast
	return NewRuleService(repo, nil, trail, zap.NewNop())
}

func TestRuleServiceCreateStartsAtVersionOne(t *testing.T) {
	repo := &memRuleRepo{}
	trail := &captureTrail{}
	svc := newRuleService(repo, trail)

	created, err := svc.Create(context.Background(), "u-1", domain.Rule{
		OrganizationID: "org-1",
		Name:           "no refunds claim",
		Category:       domain.CategoryPolicy,
		Severity:       domain.SeverityWarn,
		Pattern:        keywordPattern(t, "all sales are final"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, created.Version)
	assert.True(t, created.Active)
	assert.NotEmpty(t, created.RuleID)

	require.Len(t, trail.events, 1)
	assert.Equal(t, audit.ActionRuleCreate, trail.events[0].Action)
}

// Update никогда не переписывает историю: каждая правка = новая версия.
func TestRuleServiceUpdateAppendsVersion(t *testing.T) {
	repo := &memRuleRepo{}
	svc := newRuleService(repo, &captureTrail{})

	created, err := svc.Create(context.Background(), "u-1", domain.Rule{
		OrganizationID: "org-1",
		Name:           "no refunds claim",
		Category:       domain.CategoryPolicy,
		Severity:       domain.SeverityWarn,
		Pattern:        keywordPattern(t, "all sales are final"),
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), "u-1", domain.Rule{
		RuleID:         created.RuleID,
		OrganizationID: "org-1",
		Name:           "no refunds claim",
		Category:       domain.CategoryPolicy,
		Severity:       domain.SeverityBlock,
		Pattern:        keywordPattern(t, "all sales are final", "no refunds"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)

	history, err := svc.History(context.Background(), "org-1", created.RuleID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.SeverityWarn, history[0].Severity, "старая версия не тронута")
	assert.Equal(t, domain.SeverityBlock, history[1].Severity)
}

// Deactivate — это не удаление, а новая версия с active=false.
func TestRuleServiceDeactivateKeepsHistory(t *testing.T) {
	repo := &memRuleRepo{}
	svc := newRuleService(repo, &captureTrail{})

	created, err := svc.Create(context.Background(), "u-1", domain.Rule{
		OrganizationID: "org-1",
		Name:           "gdpr leak",
		Category:       domain.CategoryCompliance,
		Severity:       domain.SeverityBlock,
		Pattern:        keywordPattern(t, "passport number"),
	})
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(context.Background(), "u-1", "org-1", created.RuleID)
	require.NoError(t, err)

	assert.Equal(t, 2, deactivated.Version)
	assert.False(t, deactivated.Active)

	history, err := svc.History(context.Background(), "org-1", created.RuleID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRuleServiceRejectsMalformedPattern(t *testing.T) {
	svc := newRuleService(&memRuleRepo{}, &captureTrail{})

	_, err := svc.Create(context.Background(), "u-1", domain.Rule{
		OrganizationID: "org-1",
		Name:           "broken regex",
		Category:       domain.CategoryPolicy,
		Severity:       domain.SeverityWarn,
		Pattern:        json.RawMessage(`{"type":"regex","patterns":["[unclosed"]}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestRuleServiceRejectsUnknownSeverity(t *testing.T) {
	svc := newRuleService(&memRuleRepo{}, &captureTrail{})

	_, err := svc.Create(context.Background(), "u-1", domain.Rule{
		OrganizationID: "org-1",
		Name:           "weird severity",
		Category:       domain.CategoryPolicy,
		Severity:       domain.RuleSeverity("panic"),
		Pattern:        keywordPattern(t, "x"),
	})
	assert.Error(t, err)
}

func TestRuleServiceUpdateMissingRule(t *testing.T) {
	svc := newRuleService(&memRuleRepo{}, &captureTrail{})

	_, err := svc.Update(context.Background(), "u-1", domain.Rule{
		RuleID:         "r-ghost",
		OrganizationID: "org-1",
		Name:           "ghost",
		Category:       domain.CategoryPolicy,
		Severity:       domain.SeverityWarn,
		Pattern:        keywordPattern(t, "x"),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
