package domain

// VerificationStats — агрегаты для дашборда комплаенс-команды.
type VerificationStats struct {
	TotalInteractions int64 `json:"total_interactions"`
	ApprovedCount     int64 `json:"approved_count"`
	FlaggedCount      int64 `json:"flagged_count"`
	BlockedCount      int64 `json:"blocked_count"`
	DegradedCount     int64 `json:"degraded_count"` // Вердикты без сигнала детектора

	AvgConfidence    float64          `json:"avg_confidence"`
	ViolationsByType map[string]int64 `json:"violations_by_type"`
}
