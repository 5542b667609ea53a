package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

func mkRule(id string, sev domain.RuleSeverity, cat domain.RuleCategory, pattern string) domain.Rule {
	return domain.Rule{
		RuleID:         id,
		OrganizationID: "org-1",
		Version:        1,
		Severity:       sev,
		Category:       cat,
		Pattern:        json.RawMessage(pattern),
		Active:         true,
	}
}

func TestEvaluateKeywordMatch(t *testing.T) {
	frozen := []domain.Rule{
		mkRule("r-refund", domain.SeverityWarn, domain.CategoryPolicy,
			`{"type":"keyword","keywords":["guarantee full refunds"]}`),
	}

	res := Evaluate(frozen, domain.Interaction{
		Query:    "Can I get a full refund within 24 hours?",
		Response: "Yes, we GUARANTEE full refunds within 24 hours for all purchases.",
	})

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "r-refund", res.Matches[0].RuleID)
	assert.Equal(t, domain.SeverityWarn, res.Matches[0].Severity)
	assert.Empty(t, res.Errors)
}

// forbidden_text — легаси-алиас keyword, принимается с той же семантикой.
func TestEvaluateForbiddenTextAlias(t *testing.T) {
	frozen := []domain.Rule{
		mkRule("r-legacy", domain.SeverityBlock, domain.CategoryCompliance,
			`{"type":"forbidden_text","keywords":["account numbers"]}`),
	}

	res := Evaluate(frozen, domain.Interaction{
		Response: "Sure, here are the account numbers you asked for.",
	})
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "r-legacy", res.Matches[0].RuleID)
	assert.Empty(t, res.Errors)

	// Алиас без значений — такое же битое правило, как и keyword без значений
	_, err := ParseMatcher(json.RawMessage(`{"type":"forbidden_text"}`))
	assert.Error(t, err)
}

func TestEvaluateRegexMatch(t *testing.T) {
	frozen := []domain.Rule{
		mkRule("r-attr", domain.SeverityBlock, domain.CategoryHallucination,
			`{"type":"regex","patterns":["steve jobs\\s+invented"]}`),
	}

	res := Evaluate(frozen, domain.Interaction{
		Query:    "Who invented email?",
		Response: "Steve Jobs invented email in 1998 while working at Apple.",
	})

	require.Len(t, res.Matches, 1)
	assert.Equal(t, domain.SeverityBlock, res.Matches[0].Severity)
	assert.Equal(t, domain.CategoryHallucination, res.Matches[0].Category)
}

func TestEvaluateRequiredText(t *testing.T) {
	frozen := []domain.Rule{
		mkRule("r-disclaimer", domain.SeverityWarn, domain.CategoryCompliance,
			`{"type":"required_text","required":["not financial advice"]}`),
	}

	// Дисклеймер отсутствует — правило срабатывает
	res := Evaluate(frozen, domain.Interaction{Response: "You should buy these stocks now."})
	require.Len(t, res.Matches, 1)
	assert.Contains(t, res.Matches[0].Detail, "missing required text")

	// Дисклеймер на месте — нарушения нет
	res = Evaluate(frozen, domain.Interaction{Response: "Consider index funds. This is not financial advice."})
	assert.Empty(t, res.Matches)
}

func TestEvaluateResponseTimeThreshold(t *testing.T) {
	frozen := []domain.Rule{
		mkRule("r-latency", domain.SeverityWarn, domain.CategoryPolicy,
			`{"type":"response_time","max_seconds":2.5}`),
	}

	res := Evaluate(frozen, domain.Interaction{Response: "ok", ResponseTimeSeconds: 3.1})
	require.Len(t, res.Matches, 1)

	res = Evaluate(frozen, domain.Interaction{Response: "ok", ResponseTimeSeconds: 1.0})
	assert.Empty(t, res.Matches)
}

// Порядок совпадений не зависит от порядка правил на входе.
func TestEvaluateDeterministicOrder(t *testing.T) {
	frozen := []domain.Rule{
		mkRule("r-03", domain.SeverityWarn, domain.CategoryPolicy, `{"type":"keyword","keywords":["refund"]}`),
		mkRule("r-01", domain.SeverityWarn, domain.CategoryPolicy, `{"type":"keyword","keywords":["refund"]}`),
		mkRule("r-02", domain.SeverityWarn, domain.CategoryPolicy, `{"type":"keyword","keywords":["refund"]}`),
	}

	res := Evaluate(frozen, domain.Interaction{Response: "full refund for everyone"})
	require.Len(t, res.Matches, 3)
	assert.Equal(t, []string{"r-01", "r-02", "r-03"}, res.MatchedIDs())
}

func TestEvaluateInactiveRuleSkipped(t *testing.T) {
	r := mkRule("r-off", domain.SeverityBlock, domain.CategoryPolicy, `{"type":"keyword","keywords":["refund"]}`)
	r.Active = false

	res := Evaluate([]domain.Rule{r}, domain.Interaction{Response: "refund"})
	assert.Empty(t, res.Matches)
	assert.Empty(t, res.Errors)
}

// Битый паттерн: fail-closed — правило пропущено и зафиксировано в Errors,
// остальные правила вычислены, оценка не абортится.
func TestEvaluateMalformedPatternFailsClosed(t *testing.T) {
	frozen := []domain.Rule{
		mkRule("r-bad-regex", domain.SeverityBlock, domain.CategoryPolicy, `{"type":"regex","patterns":["[unclosed"]}`),
		mkRule("r-bad-type", domain.SeverityBlock, domain.CategoryPolicy, `{"type":"neural_magic"}`),
		mkRule("r-good", domain.SeverityWarn, domain.CategoryPolicy, `{"type":"keyword","keywords":["refund"]}`),
	}

	res := Evaluate(frozen, domain.Interaction{Response: "refund guaranteed"})
	assert.Equal(t, []string{"r-bad-regex", "r-bad-type"}, res.Errors)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "r-good", res.Matches[0].RuleID)
}

func TestParseMatcherRejectsEmptyConfigs(t *testing.T) {
	for _, raw := range []string{
		`{"type":"keyword"}`,
		`{"type":"regex"}`,
		`{"type":"required_text"}`,
		`{"type":"response_time","max_seconds":0}`,
		`not json at all`,
	} {
		_, err := ParseMatcher(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}
