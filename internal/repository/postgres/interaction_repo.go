package postgres

/*
Файл interaction_repo.go — персистенция взаимодействий и вердиктов.

Идемпотентность держится на PRIMARY KEY interactions.id: повторная
вставка того же id уходит в ON CONFLICT DO NOTHING, и вызывающий
получает признак "запись уже была". Пара Interaction+Verdict пишется
в одной транзакции, частичных состояний в базе не бывает.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/export"
)

type InteractionRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewInteractionRepo(pool *pgxpool.Pool, logger *zap.Logger) *InteractionRepo {
	return &InteractionRepo{pool: pool, logger: logger.With(zap.String("mod", "interaction_repo"))}
}

// CreateWithVerdict атомарно сохраняет взаимодействие с вердиктом.
// Возвращает false, если id уже существует (идемпотентный повтор).
func (r *InteractionRepo) CreateWithVerdict(ctx context.Context, inter domain.Interaction, v domain.Verdict) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO interactions (id, organization_id, query, response, ai_model, session_id, submitted_at, response_time_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		inter.ID, inter.OrganizationID, inter.Query, inter.Response,
		inter.AIModel, inter.SessionID, inter.SubmittedAt, inter.ResponseTimeSeconds,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert interaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Гонка двух submit с одним id: выигравший уже записал вердикт
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO verdicts (interaction_id, status, violation_type, confidence, detector_degraded, matched_rule_ids, rule_errors, explanation, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.InteractionID, v.Status, v.ViolationType, v.Confidence, v.DetectorDegraded,
		v.MatchedRuleIDs, v.RuleErrors, v.Explanation, v.DecidedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert verdict: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit: %w", err)
	}
	return true, nil
}

func (r *InteractionRepo) GetVerdict(ctx context.Context, interactionID string) (*domain.Verdict, error) {
	v := &domain.Verdict{}
	err := r.pool.QueryRow(ctx, `
		SELECT interaction_id, status, violation_type, confidence, detector_degraded,
		       matched_rule_ids, rule_errors, explanation, decided_at
		FROM verdicts WHERE interaction_id = $1`, interactionID).Scan(
		&v.InteractionID, &v.Status, &v.ViolationType, &v.Confidence, &v.DetectorDegraded,
		&v.MatchedRuleIDs, &v.RuleErrors, &v.Explanation, &v.DecidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// GetByID возвращает взаимодействие вместе с вердиктом.
func (r *InteractionRepo) GetByID(ctx context.Context, orgID, id string) (*domain.Interaction, *domain.Verdict, error) {
	inter := &domain.Interaction{}
	v := &domain.Verdict{}
	err := r.pool.QueryRow(ctx, `
		SELECT i.id, i.organization_id, i.query, i.response, i.ai_model, i.session_id,
		       i.submitted_at, i.response_time_seconds,
		       v.interaction_id, v.status, v.violation_type, v.confidence, v.detector_degraded,
		       v.matched_rule_ids, v.rule_errors, v.explanation, v.decided_at
		FROM interactions i
		JOIN verdicts v ON v.interaction_id = i.id
		WHERE i.id = $1 AND i.organization_id = $2`, id, orgID).Scan(
		&inter.ID, &inter.OrganizationID, &inter.Query, &inter.Response, &inter.AIModel, &inter.SessionID,
		&inter.SubmittedAt, &inter.ResponseTimeSeconds,
		&v.InteractionID, &v.Status, &v.ViolationType, &v.Confidence, &v.DetectorDegraded,
		&v.MatchedRuleIDs, &v.RuleErrors, &v.Explanation, &v.DecidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}
	return inter, v, nil
}

// Range постранично листает взаимодействия организации за период.
// Обе границы включительные, порядок стабильный (submitted_at, id).
func (r *InteractionRepo) Range(ctx context.Context, f export.Filter, limit, offset int) ([]domain.VerdictEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.organization_id, i.query, i.response, i.ai_model, i.session_id,
		       i.submitted_at, i.response_time_seconds,
		       v.interaction_id, v.status, v.violation_type, v.confidence, v.detector_degraded,
		       v.matched_rule_ids, v.rule_errors, v.explanation, v.decided_at
		FROM interactions i
		JOIN verdicts v ON v.interaction_id = i.id
		WHERE i.organization_id = $1
		  AND i.submitted_at >= $2 AND i.submitted_at <= $3
		  AND ($4 = '' OR v.status = $4)
		ORDER BY i.submitted_at, i.id
		LIMIT $5 OFFSET $6`,
		f.OrganizationID, f.From, f.To, string(f.Status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.VerdictEvent
	for rows.Next() {
		var ev domain.VerdictEvent
		if err := rows.Scan(
			&ev.Interaction.ID, &ev.Interaction.OrganizationID, &ev.Interaction.Query, &ev.Interaction.Response,
			&ev.Interaction.AIModel, &ev.Interaction.SessionID, &ev.Interaction.SubmittedAt, &ev.Interaction.ResponseTimeSeconds,
			&ev.Verdict.InteractionID, &ev.Verdict.Status, &ev.Verdict.ViolationType, &ev.Verdict.Confidence,
			&ev.Verdict.DetectorDegraded, &ev.Verdict.MatchedRuleIDs, &ev.Verdict.RuleErrors,
			&ev.Verdict.Explanation, &ev.Verdict.DecidedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

// Stream отдает срез для экспорта по одной записи, без буферизации
// всего результата в памяти. Ошибка курсора приходит вторым каналом
// после закрытия первого.
func (r *InteractionRepo) Stream(ctx context.Context, f export.Filter) (<-chan export.Record, <-chan error) {
	out := make(chan export.Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		rows, err := r.pool.Query(ctx, `
			SELECT i.id, i.submitted_at, v.decided_at, i.query, i.response,
			       v.status, v.violation_type, v.matched_rule_ids, v.confidence
			FROM interactions i
			JOIN verdicts v ON v.interaction_id = i.id
			WHERE i.organization_id = $1
			  AND i.submitted_at >= $2 AND i.submitted_at <= $3
			  AND ($4 = '' OR v.status = $4)
			ORDER BY i.submitted_at, i.id`,
			f.OrganizationID, f.From, f.To, string(f.Status))
		if err != nil {
			errCh <- err
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec export.Record
			if err := rows.Scan(
				&rec.ID, &rec.SubmittedAt, &rec.DecidedAt, &rec.Query, &rec.Response,
				&rec.Status, &rec.ViolationType, &rec.MatchedRuleIDs, &rec.Confidence,
			); err != nil {
				errCh <- err
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// Stats считает агрегаты для дашборда одной организации.
func (r *InteractionRepo) Stats(ctx context.Context, orgID string, since time.Time) (*domain.VerificationStats, error) {
	s := &domain.VerificationStats{ViolationsByType: make(map[string]int64)}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE v.status = 'approved'),
			COUNT(*) FILTER (WHERE v.status = 'flagged'),
			COUNT(*) FILTER (WHERE v.status = 'blocked'),
			COUNT(*) FILTER (WHERE v.detector_degraded),
			COALESCE(AVG(v.confidence) FILTER (WHERE NOT v.detector_degraded), 0)
		FROM interactions i
		JOIN verdicts v ON v.interaction_id = i.id
		WHERE i.organization_id = $1 AND i.submitted_at >= $2`, orgID, since).Scan(
		&s.TotalInteractions, &s.ApprovedCount, &s.FlaggedCount, &s.BlockedCount,
		&s.DegradedCount, &s.AvgConfidence,
	)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT v.violation_type, COUNT(*)
		FROM interactions i
		JOIN verdicts v ON v.interaction_id = i.id
		WHERE i.organization_id = $1 AND i.submitted_at >= $2 AND v.violation_type <> 'none'
		GROUP BY v.violation_type`, orgID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var vt string
		var n int64
		if err := rows.Scan(&vt, &n); err != nil {
			return nil, err
		}
		s.ViolationsByType[vt] = n
	}
	return s, rows.Err()
}
