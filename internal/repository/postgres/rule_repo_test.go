package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Ключ advisory-лока должен быть стабильным между инстансами и не
// склеивать разные пары (org, rule) в один ключ.
func TestRuleVersionLockKey(t *testing.T) {
	assert.Equal(t,
		ruleVersionLockKey("org-1", "r-refund"),
		ruleVersionLockKey("org-1", "r-refund"),
		"один и тот же ключ для одной пары на любом инстансе")

	assert.NotEqual(t,
		ruleVersionLockKey("org-1", "r-refund"),
		ruleVersionLockKey("org-2", "r-refund"),
		"разные организации не должны блокировать друг друга")

	assert.NotEqual(t,
		ruleVersionLockKey("org-1", "r-refund"),
		ruleVersionLockKey("org-1", "r-pricing"),
		"разные правила одной организации не должны блокировать друг друга")

	// Склейка границ: ("ab","c") и ("a","bc") — разные пары
	assert.NotEqual(t,
		ruleVersionLockKey("ab", "c"),
		ruleVersionLockKey("a", "bc"))
}
