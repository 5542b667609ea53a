package postgres

/*
Файл rule_repo.go — хранение комплаенс-правил. Таблица rules append-only:
каждое изменение правила (включая деактивацию) пишется новой версией
с монотонно растущим version, старые версии никогда не трогаются.
Так срез ActiveAsOf на любой момент времени воспроизводим.
*/

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

type RuleRepo struct {
	pool *pgxpool.Pool
}

func NewRuleRepo(pool *pgxpool.Pool) *RuleRepo {
	return &RuleRepo{pool: pool}
}

const ruleColumns = "rule_id, organization_id, version, name, category, severity, pattern, active, created_at"

func scanRule(row pgx.Row) (domain.Rule, error) {
	var r domain.Rule
	err := row.Scan(&r.RuleID, &r.OrganizationID, &r.Version, &r.Name,
		&r.Category, &r.Severity, &r.Pattern, &r.Active, &r.CreatedAt)
	return r, err
}

// AllRules — холодная загрузка всех версий всех правил для кэша.
func (r *RuleRepo) AllRules(ctx context.Context) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY organization_id, rule_id, version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rule)
	}
	return results, rows.Err()
}

// ActiveRulesAsOf — срез правил организации на момент времени на стороне
// базы. Для каждого rule_id берется старшая версия, созданная не позже ts.
func (r *RuleRepo) ActiveRulesAsOf(ctx context.Context, orgID string, ts time.Time) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (rule_id) `+ruleColumns+`
		FROM rules
		WHERE organization_id = $1 AND created_at <= $2
		ORDER BY rule_id, version DESC`, orgID, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		if rule.Active {
			results = append(results, rule)
		}
	}
	return results, rows.Err()
}

// CreateVersion добавляет новую версию правила. Любое изменение, включая
// деактивацию, проходит здесь: version = MAX(существующих) + 1.
// Конкурентные записи одного правила сериализуются advisory-локом на
// (organization_id, rule_id), иначе два INSERT могут взять один MAX
// и выдать дубликат версии.
func (r *RuleRepo) CreateVersion(ctx context.Context, rule domain.Rule) (*domain.Rule, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: create rule version: %w", err)
	}
	defer tx.Rollback(ctx)

	// Лок транзакционный: снимется на COMMIT/ROLLBACK сам
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`,
		ruleVersionLockKey(rule.OrganizationID, rule.RuleID)); err != nil {
		return nil, fmt.Errorf("postgres: create rule version: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO rules (rule_id, organization_id, version, name, category, severity, pattern, active, created_at)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM rules WHERE organization_id = $2 AND rule_id = $1),
			$3, $4, $5, $6, $7, NOW())
		RETURNING `+ruleColumns,
		rule.RuleID, rule.OrganizationID, rule.Name, rule.Category, rule.Severity, rule.Pattern, rule.Active)

	created, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: create rule version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: create rule version: %w", err)
	}
	return &created, nil
}

// ruleVersionLockKey сводит пару (org, rule) к ключу pg_advisory_xact_lock.
// Разделитель \x00 исключает склейку разных пар в один ключ.
func ruleVersionLockKey(orgID, ruleID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(orgID))
	h.Write([]byte{0})
	h.Write([]byte(ruleID))
	return int64(h.Sum64())
}

// ListRules возвращает текущее состояние правил организации
// (старшая версия каждого rule_id, включая деактивированные).
func (r *RuleRepo) ListRules(ctx context.Context, orgID string) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (rule_id) `+ruleColumns+`
		FROM rules
		WHERE organization_id = $1
		ORDER BY rule_id, version DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rule)
	}
	return results, rows.Err()
}

// GetRule возвращает старшую версию правила.
func (r *RuleRepo) GetRule(ctx context.Context, orgID, ruleID string) (*domain.Rule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE organization_id = $1 AND rule_id = $2
		ORDER BY version DESC
		LIMIT 1`, orgID, ruleID)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// ListVersions — полная история правила для аудита.
func (r *RuleRepo) ListVersions(ctx context.Context, orgID, ruleID string) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE organization_id = $1 AND rule_id = $2
		ORDER BY version`, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rule)
	}
	return results, rows.Err()
}
