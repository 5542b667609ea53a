package rules

import (
	"sort"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

// Match — одно сработавшее правило.
type Match struct {
	RuleID   string
	Severity domain.RuleSeverity
	Category domain.RuleCategory
	Detail   string
}

// Result — итог оценки замороженного набора правил.
type Result struct {
	// Matches упорядочены по RuleID по возрастанию — независимо от порядка
	// на входе и от какой-либо конкурентности снаружи.
	Matches []Match
	// Errors — RuleID правил, которые не удалось вычислить (битый паттерн).
	// Fail-closed: правило пропущено, оценка остальных продолжена.
	Errors []string
}

// Evaluate — чистая функция: (взаимодействие, замороженный набор правил) -> совпадения.
// Никакого I/O, никаких побочных эффектов. Неактивные правила не вычисляются вовсе.
func Evaluate(frozen []domain.Rule, inter domain.Interaction) Result {
	// Детерминированный порядок: копия, отсортированная по rule_id
	ordered := make([]domain.Rule, len(frozen))
	copy(ordered, frozen)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RuleID < ordered[j].RuleID })

	var res Result
	for _, r := range ordered {
		if !r.Active {
			continue
		}

		m, err := ParseMatcher(r.Pattern)
		if err != nil {
			res.Errors = append(res.Errors, r.RuleID)
			continue
		}

		if ok, detail := m.Match(inter); ok {
			res.Matches = append(res.Matches, Match{
				RuleID:   r.RuleID,
				Severity: r.Severity,
				Category: r.Category,
				Detail:   detail,
			})
		}
	}
	return res
}

// MatchedIDs возвращает идентификаторы сработавших правил (в порядке оценки).
func (r Result) MatchedIDs() []string {
	ids := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		ids[i] = m.RuleID
	}
	return ids
}
