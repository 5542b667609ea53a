package service

/*
Файл rules.go — управление комплаенс-правилами из консоли.

Правила append-only: Create, Update и Deactivate — это всегда новая
версия с растущим version, история никогда не переписывается. После
каждой записи всем инстансам движка уходит сигнал инвалидации кэша
через Redis pub/sub.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/infra"
	"github.com/xela07ax/veritas-trust-engine/internal/rules"
)

// RuleRepository описывает требования сервиса к хранилищу правил
type RuleRepository interface {
	CreateVersion(ctx context.Context, rule domain.Rule) (*domain.Rule, error)
	ListRules(ctx context.Context, orgID string) ([]domain.Rule, error)
	GetRule(ctx context.Context, orgID, ruleID string) (*domain.Rule, error)
	ListVersions(ctx context.Context, orgID, ruleID string) ([]domain.Rule, error)
}

type RuleService struct {
	repo   RuleRepository
	rdb    *redis.Client
	trail  audit.Recorder
	logger *zap.Logger
}

func NewRuleService(repo RuleRepository, rdb *redis.Client, trail audit.Recorder, logger *zap.Logger) *RuleService {
	return &RuleService{
		repo:   repo,
		rdb:    rdb,
		trail:  trail,
		logger: logger.Named("rule-service"),
	}
}

func (s *RuleService) List(ctx context.Context, orgID string) ([]domain.Rule, error) {
	return s.repo.ListRules(ctx, orgID)
}

func (s *RuleService) Get(ctx context.Context, orgID, ruleID string) (*domain.Rule, error) {
	return s.repo.GetRule(ctx, orgID, ruleID)
}

func (s *RuleService) History(ctx context.Context, orgID, ruleID string) ([]domain.Rule, error) {
	return s.repo.ListVersions(ctx, orgID, ruleID)
}

// Create заводит новое правило (версия 1). Паттерн валидируется до записи:
// правило, которое движок не сможет распарсить, в базу не попадает.
func (s *RuleService) Create(ctx context.Context, actor string, rule domain.Rule) (*domain.Rule, error) {
	if rule.RuleID == "" {
		rule.RuleID = uuid.New().String()
	}
	rule.Active = true
	if err := s.validate(rule); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateVersion(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, audit.ActionRuleCreate, created)
	return created, nil
}

// Update меняет правило записью новой версии поверх старшей.
func (s *RuleService) Update(ctx context.Context, actor string, rule domain.Rule) (*domain.Rule, error) {
	if _, err := s.repo.GetRule(ctx, rule.OrganizationID, rule.RuleID); err != nil {
		return nil, err
	}
	rule.Active = true
	if err := s.validate(rule); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateVersion(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, audit.ActionRuleUpdate, created)
	return created, nil
}

// Deactivate выключает правило. Физического удаления нет: пишется
// новая версия с active=false, история остается воспроизводимой.
func (s *RuleService) Deactivate(ctx context.Context, actor, orgID, ruleID string) (*domain.Rule, error) {
	current, err := s.repo.GetRule(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Active = false

	created, err := s.repo.CreateVersion(ctx, next)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, audit.ActionRuleDisable, created)
	return created, nil
}

func (s *RuleService) validate(rule domain.Rule) error {
	if rule.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	switch rule.Severity {
	case domain.SeverityWarn, domain.SeverityBlock:
	default:
		return fmt.Errorf("unknown severity %q", rule.Severity)
	}
	switch rule.Category {
	case domain.CategoryHallucination, domain.CategoryCompliance, domain.CategoryPolicy:
	default:
		return fmt.Errorf("unknown category %q", rule.Category)
	}
	if _, err := rules.ParseMatcher(rule.Pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}

func (s *RuleService) afterWrite(ctx context.Context, actor, action string, rule *domain.Rule) {
	s.trail.Record(audit.Event{
		ID:             uuid.New().String(),
		OrganizationID: rule.OrganizationID,
		Action:         action,
		Actor:          actor,
		Detail: map[string]interface{}{
			"rule_id":  rule.RuleID,
			"version":  rule.Version,
			"severity": string(rule.Severity),
			"active":   rule.Active,
		},
		Status:    "SUCCESS",
		Timestamp: time.Now().UTC(),
	})
	s.notifyUpdate(ctx)
}

// notifyUpdate отправляет широковещательный сигнал в Redis. Все инстансы
// движка, подписанные на канал, перечитают таблицу правил в свой кэш.
func (s *RuleService) notifyUpdate(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanRuleUpdate, "refresh").Err(); err != nil {
		s.logger.Error("rule cache invalidation broadcast failed", zap.Error(err))
	}
}
