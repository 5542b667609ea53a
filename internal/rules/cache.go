package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/infra"
	"go.uber.org/zap"
)

// Source описывает требования кэша к хранилищу правил.
type Source interface {
	// AllRules возвращает ВСЕ версии правил (append-only история).
	AllRules(ctx context.Context) ([]domain.Rule, error)
}

// Cache — In-memory кэш версионированных правил. Hot Path движка читает
// только из RAM; Postgres нужен для холодной загрузки и Refresh().
// Версии иммутабельны, поэтому чтение под RLock без копирования паттернов.
// Консоль после каждой новой версии публикует сигнал в Redis, и все
// инстансы перечитывают набор целиком.
type Cache struct {
	mu sync.RWMutex
	// org_id -> все версии правил организации
	byOrg map[string][]domain.Rule

	repo   Source // Используется только для Refresh()
	rdb    *redis.Client
	logger *zap.Logger
}

func NewCache(repo Source, rdb *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{
		byOrg:  make(map[string][]domain.Rule),
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("rulecache"),
	}
}

// Refresh выполняет «холодную загрузку» всей append-only истории правил
// из PostgreSQL в память (при старте и по сигналу инвалидации).
func (c *Cache) Refresh(ctx context.Context) error {
	all, err := c.repo.AllRules(ctx)
	if err != nil {
		return err
	}

	byOrg := make(map[string][]domain.Rule)
	for _, r := range all {
		byOrg[r.OrganizationID] = append(byOrg[r.OrganizationID], r)
	}

	c.mu.Lock()
	c.byOrg = byOrg
	c.mu.Unlock()

	c.logger.Info("rule cache refreshed",
		zap.Int("organizations", len(byOrg)), zap.Int("versions", len(all)))
	return nil
}

// ActiveAsOf возвращает замороженный набор правил организации на момент ts:
// для каждого rule_id берется старшая версия с CreatedAt <= ts; версии,
// созданные позже, не видны — поздние правки не переписывают прошлые вердикты.
// Результат отсортирован по rule_id и содержит только active-версии.
func (c *Cache) ActiveAsOf(orgID string, ts time.Time) []domain.Rule {
	c.mu.RLock()
	versions := c.byOrg[orgID]
	c.mu.RUnlock()

	// Старшая подходящая версия на каждый rule_id
	latest := make(map[string]domain.Rule)
	for _, r := range versions {
		if r.CreatedAt.After(ts) {
			continue
		}
		if cur, ok := latest[r.RuleID]; !ok || r.Version > cur.Version {
			latest[r.RuleID] = r
		}
	}

	frozen := make([]domain.Rule, 0, len(latest))
	for _, r := range latest {
		if r.Active {
			frozen = append(frozen, r)
		}
	}
	sort.Slice(frozen, func(i, j int) bool { return frozen[i].RuleID < frozen[j].RuleID })
	return frozen
}

// HasOrganization сообщает, есть ли у организации хоть одна версия правил.
func (c *Cache) HasOrganization(orgID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byOrg[orgID]) > 0
}

// StartListener подписывается на сигнал инвалидации и перечитывает кэш.
// Блокируется до отмены контекста — запускать в отдельной горутине.
func (c *Cache) StartListener(ctx context.Context) {
	if c.rdb == nil {
		c.logger.Warn("redis is not configured, rule cache will not auto-refresh")
		return
	}

	infra.ListenResilient(ctx, c.rdb, c.logger, infra.RedisChanRuleUpdate,
		func() error { return c.Refresh(ctx) }, // Синхронизация при (пере)подключении
		func(payload string) {
			// Сигнал простой ("refresh") — перечитываем всю таблицу
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error("rule cache refresh failed", zap.Error(err))
			}
		},
	)
}
