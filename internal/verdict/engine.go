package verdict

/*
Файл engine.go — ядро движка проверки. Engine.Submit прогоняет одно
AI-взаимодействие через детектор галлюцинаций и комплаенс-правила
организации, выносит вердикт, атомарно сохраняет его и раздает живым
подписчикам.

Порядок обработки (Hot Path):
 1. Валидация и поиск организации (до любых побочных эффектов).
 2. Идемпотентность: повторный submit с тем же id возвращает сохраненный
    вердикт без переоценки.
 3. Детектор и правила работают параллельно, результат сводится перед
    деривацией.
 4. Деривация статуса: block-правило сильнее порога детектора, порог
    детектора сильнее warn-правил.
 5. Атомарная запись Interaction+Verdict, затем неблокирующий fan-out
    и Audit Trail.
*/

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
	"github.com/xela07ax/veritas-trust-engine/internal/detector"
	"github.com/xela07ax/veritas-trust-engine/internal/domain"
	"github.com/xela07ax/veritas-trust-engine/internal/rules"
)

// InteractionStore — персистентность вердиктов (Postgres)
type InteractionStore interface {
	// CreateWithVerdict атомарно сохраняет пару. Возвращает false,
	// если запись с таким id уже существует (идемпотентный повтор).
	CreateWithVerdict(ctx context.Context, inter domain.Interaction, v domain.Verdict) (bool, error)
	// GetVerdict возвращает domain.ErrNotFound, если взаимодействие не встречалось
	GetVerdict(ctx context.Context, interactionID string) (*domain.Verdict, error)
}

// OrganizationSource — справочник организаций
type OrganizationSource interface {
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
}

// RuleSource отдает снимок активных правил организации на момент времени
type RuleSource interface {
	ActiveAsOf(orgID string, ts time.Time) []domain.Rule
}

// Publisher — неблокирующая доставка вердиктов подписчикам
type Publisher interface {
	Publish(ctx context.Context, ev domain.VerdictEvent)
}

type Engine struct {
	store      InteractionStore
	orgs       OrganizationSource
	rules      RuleSource
	scorer     detector.Scorer
	publisher  Publisher
	trail      audit.Recorder
	metrics    *Metrics
	logger     *zap.Logger
	precedence map[domain.ViolationType]int
}

// NewEngine собирает движок. precedence задает порядок важности тегов
// нарушений (первый элемент — самый важный) для вердиктов по правилам.
func NewEngine(
	store InteractionStore,
	orgs OrganizationSource,
	ruleSrc RuleSource,
	scorer detector.Scorer,
	publisher Publisher,
	trail audit.Recorder,
	metrics *Metrics,
	precedence []string,
	logger *zap.Logger,
) *Engine {
	if len(precedence) == 0 {
		precedence = []string{
			string(domain.ViolationCompliance),
			string(domain.ViolationPolicy),
			string(domain.ViolationHallucination),
		}
	}
	rank := make(map[domain.ViolationType]int, len(precedence))
	for i, v := range precedence {
		rank[domain.ViolationType(v)] = i
	}
	return &Engine{
		store:      store,
		orgs:       orgs,
		rules:      ruleSrc,
		scorer:     scorer,
		publisher:  publisher,
		trail:      trail,
		metrics:    metrics,
		logger:     logger.With(zap.String("mod", "verdict_engine")),
		precedence: rank,
	}
}

type scoreResult struct {
	confidence float64
	err        error
}

func (e *Engine) Submit(ctx context.Context, inter domain.Interaction) (*domain.Verdict, error) {
	start := time.Now()

	if err := validate(&inter); err != nil {
		e.metrics.ErrorTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}

	// ШАГ 1: организация должна существовать до любых побочных эффектов
	org, err := e.orgs.GetOrganization(ctx, inter.OrganizationID)
	if err != nil {
		e.metrics.ErrorTotal.WithLabelValues("invalid_org").Inc()
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidOrganization, inter.OrganizationID)
		}
		return nil, fmt.Errorf("organization lookup: %w", err)
	}

	// ШАГ 2: идемпотентность. Повтор с тем же id не переоценивается
	// и не публикуется заново.
	if existing, err := e.store.GetVerdict(ctx, inter.ID); err == nil {
		e.logger.Debug("duplicate submission, returning stored verdict",
			zap.String("interaction_id", inter.ID))
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		e.metrics.ErrorTotal.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("%w: verdict lookup: %v", domain.ErrPersistence, err)
	}

	// ШАГ 3: детектор в отдельной горутине, правила считаем тут же.
	// Снимок правил замораживается на момент SubmittedAt.
	scoreCh := make(chan scoreResult, 1)
	go func() {
		conf, err := e.scorer.Score(ctx, inter.Query, inter.Response)
		scoreCh <- scoreResult{confidence: conf, err: err}
	}()

	frozen := e.rules.ActiveAsOf(inter.OrganizationID, inter.SubmittedAt)
	evalRes := rules.Evaluate(frozen, inter)

	score := <-scoreCh
	degraded := false
	confidence := score.confidence
	if score.err != nil {
		// Деградация детектора никогда не валит submit: риск неизвестен,
		// подставляем 0 и помечаем вердикт.
		degraded = true
		confidence = 0
		e.metrics.DetectorDegraded.Inc()
		e.logger.Warn("detector degraded, verdict proceeds without score",
			zap.String("interaction_id", inter.ID),
			zap.Error(score.err),
		)
	}

	// ШАГ 4: деривация
	v := e.derive(org, inter, evalRes, confidence, degraded)

	// ШАГ 5: атомарная запись
	created, err := e.store.CreateWithVerdict(ctx, inter, v)
	if err != nil {
		e.metrics.ErrorTotal.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !created {
		// Кто-то успел записать между fast-path и INSERT. Возвращаем
		// сохраненный вердикт, повторной публикации не делаем.
		existing, err := e.store.GetVerdict(ctx, inter.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: concurrent verdict fetch: %v", domain.ErrPersistence, err)
		}
		return existing, nil
	}

	// ШАГ 6: неблокирующий fan-out и Audit Trail
	e.publisher.Publish(ctx, domain.VerdictEvent{Interaction: inter, Verdict: v})
	e.recordAudit(inter, v, start)

	e.metrics.SubmissionsTotal.WithLabelValues(inter.OrganizationID, string(v.Status)).Inc()
	e.metrics.SubmissionDuration.WithLabelValues(string(v.Status)).Observe(time.Since(start).Seconds())
	return &v, nil
}

func validate(inter *domain.Interaction) error {
	if inter.OrganizationID == "" {
		return fmt.Errorf("%w: organization_id is required", domain.ErrMalformedInteraction)
	}
	if strings.TrimSpace(inter.Query) == "" || strings.TrimSpace(inter.Response) == "" {
		return fmt.Errorf("%w: query and response are required", domain.ErrMalformedInteraction)
	}
	if inter.ID == "" {
		inter.ID = uuid.New().String()
	}
	if inter.SubmittedAt.IsZero() {
		inter.SubmittedAt = time.Now().UTC()
	}
	return nil
}

// derive выносит статус и тег нарушения.
// Приоритет: block-правило > порог детектора > warn-правило > approved.
func (e *Engine) derive(org *domain.Organization, inter domain.Interaction, res rules.Result, confidence float64, degraded bool) domain.Verdict {
	v := domain.Verdict{
		InteractionID:    inter.ID,
		Confidence:       confidence,
		DetectorDegraded: degraded,
		MatchedRuleIDs:   res.MatchedIDs(),
		RuleErrors:       res.Errors,
		DecidedAt:        time.Now().UTC(),
	}
	if !v.DecidedAt.After(inter.SubmittedAt) {
		v.DecidedAt = inter.SubmittedAt
	}

	var blockMatches, warnMatches []rules.Match
	for _, m := range res.Matches {
		if m.Severity == domain.SeverityBlock {
			blockMatches = append(blockMatches, m)
		} else {
			warnMatches = append(warnMatches, m)
		}
	}

	switch {
	case len(blockMatches) > 0:
		v.Status = domain.StatusBlocked
		v.ViolationType = e.dominantViolation(blockMatches)
		v.Explanation = explainRules("blocked", blockMatches)
	case confidence > org.BlockThreshold:
		v.Status = domain.StatusBlocked
		v.ViolationType = domain.ViolationHallucination
		v.Explanation = fmt.Sprintf("blocked: hallucination risk %.2f exceeds threshold %.2f", confidence, org.BlockThreshold)
	case len(warnMatches) > 0:
		v.Status = domain.StatusFlagged
		v.ViolationType = e.dominantViolation(warnMatches)
		v.Explanation = explainRules("flagged", warnMatches)
	default:
		v.Status = domain.StatusApproved
		v.ViolationType = domain.ViolationNone
		v.Explanation = fmt.Sprintf("approved: no rule violations, hallucination risk %.2f", confidence)
	}

	if degraded {
		v.Explanation += "; detector degraded, risk score unavailable"
	}
	return v
}

// dominantViolation выбирает тег нарушения по настроенному приоритету
// среди сработавших правил решающей severity.
func (e *Engine) dominantViolation(matches []rules.Match) domain.ViolationType {
	best := domain.ViolationNone
	bestRank := len(e.precedence) + 1
	for _, m := range matches {
		vt := violationOf(m.Category)
		rank, ok := e.precedence[vt]
		if !ok {
			rank = len(e.precedence)
		}
		if best == domain.ViolationNone || rank < bestRank {
			best = vt
			bestRank = rank
		}
	}
	return best
}

func violationOf(cat domain.RuleCategory) domain.ViolationType {
	switch cat {
	case domain.CategoryCompliance:
		return domain.ViolationCompliance
	case domain.CategoryPolicy:
		return domain.ViolationPolicy
	default:
		return domain.ViolationHallucination
	}
}

func explainRules(action string, matches []rules.Match) string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.RuleID)
	}
	sort.Strings(ids)
	return fmt.Sprintf("%s by rule(s) %s", action, strings.Join(ids, ", "))
}

func (e *Engine) recordAudit(inter domain.Interaction, v domain.Verdict, start time.Time) {
	status := "SUCCESS"
	if v.DetectorDegraded {
		status = "DEGRADED"
	}
	e.trail.Record(audit.Event{
		ID:             uuid.New().String(),
		OrganizationID: inter.OrganizationID,
		InteractionID:  inter.ID,
		Action:         audit.ActionVerify,
		Actor:          "system",
		Detail: map[string]interface{}{
			"status":         string(v.Status),
			"violation_type": string(v.ViolationType),
			"confidence":     v.Confidence,
			"matched_rules":  v.MatchedRuleIDs,
		},
		Status:     status,
		Timestamp:  start,
		DurationMs: time.Since(start).Milliseconds(),
	})
}
