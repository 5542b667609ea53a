package audit

import "time"

// Типы действий, фиксируемых в Audit Trail
const (
	ActionVerify       = "interaction.verify"
	ActionRuleCreate   = "rule.create"
	ActionRuleUpdate   = "rule.update"
	ActionRuleDisable  = "rule.disable"
	ActionExport       = "audit.export"
	ActionLogin        = "auth.login"
)

type Event struct {
	ID             string                 `json:"id"`              // UUID события
	TraceID        string                 `json:"trace_id"`        // Сквозной ID запроса
	OrganizationID string                 `json:"organization_id"` // В чьем контексте
	InteractionID  string                 `json:"interaction_id"`  // Какое взаимодействие (если применимо)
	Action         string                 `json:"action"`          // Что произошло
	Actor          string                 `json:"actor"`           // Кто инициировал (user_id или "system")
	Detail         map[string]interface{} `json:"detail"`          // Доп. контекст (вердикт, правило, диапазон экспорта)

	// Результат
	Status     string    `json:"status"` // "SUCCESS", "FAILED", "DEGRADED"
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error"`
}
