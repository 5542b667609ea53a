package domain

import "time"

// VerdictStatus — итоговая классификация взаимодействия
type VerdictStatus string

const (
	StatusApproved VerdictStatus = "approved" // Нарушений нет, ответ чистый
	StatusFlagged  VerdictStatus = "flagged"  // Требует внимания комплаенс-команды (warn-правила)
	StatusBlocked  VerdictStatus = "blocked"  // Блокировка: block-правило или высокий риск галлюцинации
)

// ViolationType — категория нарушения. None строго при StatusApproved.
type ViolationType string

const (
	ViolationNone          ViolationType = "none"
	ViolationHallucination ViolationType = "hallucination" // Фактологический риск (детектор или правило)
	ViolationCompliance    ViolationType = "compliance"    // Регуляторика (GDPR, SEC, EU AI Act)
	ViolationPolicy        ViolationType = "policy"        // Внутренние политики компании
)

// Interaction — одна пара запрос/ответ AI-системы, поданная на верификацию.
// После персистенции Query/Response/SubmittedAt неизменяемы (append-mostly запись),
// вердикт прикрепляется ровно один раз.
type Interaction struct {
	ID             string `json:"id"` // Клиент может прислать свой UUID для идемпотентности
	OrganizationID string `json:"organization_id"`
	Query          string `json:"query"`
	Response       string `json:"response"`

	// Метаданные источника (какая модель отвечала, в рамках какой сессии)
	AIModel   string `json:"ai_model,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	SubmittedAt         time.Time `json:"submitted_at"`
	ResponseTimeSeconds float64   `json:"response_time_seconds"` // Сколько генерировался ответ (>= 0)
}

// Verdict — результат верификации, прикрепленный к Interaction.
type Verdict struct {
	InteractionID string        `json:"interaction_id"`
	Status        VerdictStatus `json:"status"`
	ViolationType ViolationType `json:"violation_type"`

	// Confidence — риск галлюцинации от детектора [0,1], выше = хуже.
	// При деградации детектора подставляется 0 и ставится флаг DetectorDegraded.
	Confidence       float64 `json:"confidence"`
	DetectorDegraded bool    `json:"detector_degraded"`

	// MatchedRuleIDs — сработавшие правила в порядке возрастания rule_id (детерминизм)
	MatchedRuleIDs []string `json:"matched_rule_ids"`
	// RuleErrors — правила, которые не удалось вычислить (fail-closed, пропущены)
	RuleErrors []string `json:"rule_errors,omitempty"`

	Explanation string    `json:"explanation"`
	DecidedAt   time.Time `json:"decided_at"` // Всегда >= SubmittedAt
}

// VerdictEvent — событие для live-подписчиков: взаимодействие вместе с вердиктом.
type VerdictEvent struct {
	Interaction Interaction `json:"interaction"`
	Verdict     Verdict     `json:"verdict"`
}

// IsViolation возвращает true, если вердикт зафиксировал нарушение.
func (v *Verdict) IsViolation() bool {
	return v.Status != StatusApproved
}
