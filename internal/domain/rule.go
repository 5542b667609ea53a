package domain

import (
	"encoding/json"
	"time"
)

// RuleSeverity определяет, что делать при срабатывании правила
type RuleSeverity string

const (
	SeverityWarn  RuleSeverity = "warn"  // Пометить на ревью (flagged)
	SeverityBlock RuleSeverity = "block" // Жесткая блокировка ответа
)

// RuleCategory — к какому типу нарушения приводит срабатывание
type RuleCategory string

const (
	CategoryHallucination RuleCategory = "hallucination"
	CategoryCompliance    RuleCategory = "compliance"
	CategoryPolicy        RuleCategory = "policy"
)

// Rule — версионируемое правило комплаенса, привязанное к организации.
// Запись append-only: правило никогда не мутирует после того, как по нему
// вычислялся хоть один вердикт — изменение и деактивация создают новую версию.
// Оценка всегда идет по набору версий, активных на момент SubmittedAt.
type Rule struct {
	RuleID         string       `json:"rule_id"`
	OrganizationID string       `json:"organization_id"`
	Version        int          `json:"version"` // Монотонный счетчик в рамках (org, rule)
	Name           string       `json:"name"`
	Category       RuleCategory `json:"category"`
	Severity       RuleSeverity `json:"severity"`

	// Pattern — предикат матчинга в JSON. Закрытый набор вариантов
	// (keyword, regex, required_text, response_time), парсится в rules.
	// RawMessage позволяет комплаенс-команде задавать сложные условия,
	// не меняя структуру БД.
	Pattern json.RawMessage `json:"pattern"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ViolationType проецирует категорию правила на тип нарушения вердикта.
func (r *Rule) ViolationType() ViolationType {
	switch r.Category {
	case CategoryHallucination:
		return ViolationHallucination
	case CategoryCompliance:
		return ViolationCompliance
	case CategoryPolicy:
		return ViolationPolicy
	}
	return ViolationNone
}

// Organization — контекст верификации. Без записи в этом реестре
// подача взаимодействия отклоняется целиком (InvalidOrganization).
type Organization struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"` // finance, airline, healthcare...

	// BlockThreshold — порог риска детектора, выше которого ответ блокируется
	// даже без сработавших правил. Явная конфигурация, не зашитая константа.
	BlockThreshold float64 `json:"block_threshold"`

	CreatedAt time.Time `json:"created_at"`
}
