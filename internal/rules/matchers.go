package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

// Matcher — один предикат из закрытого набора вариантов.
// Никакой рефлексии и открытых плагинов: новые виды матчинга добавляются
// только новым типом здесь.
type Matcher interface {
	// Match возвращает факт срабатывания и человекочитаемую деталь для вердикта
	Match(inter domain.Interaction) (bool, string)
}

// pattern — JSON-схема поля Rule.Pattern.
type pattern struct {
	Type string `json:"type"`

	Keywords []string `json:"keywords,omitempty"` // keyword: любой из подстрок в ответе
	Patterns []string `json:"patterns,omitempty"` // regex: любое из выражений
	Required []string `json:"required,omitempty"` // required_text: нарушение при ОТСУТСТВИИ

	MaxSeconds float64 `json:"max_seconds,omitempty"` // response_time: порог метаданных
}

// ParseMatcher разбирает Rule.Pattern. Ошибка здесь означает битое правило:
// вызывающий обязан пропустить его (fail-closed) и зафиксировать в RuleErrors.
func ParseMatcher(raw json.RawMessage) (Matcher, error) {
	var p pattern
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("malformed pattern json: %w", err)
	}

	switch p.Type {
	case "keyword", "forbidden_text":
		// forbidden_text — историческое имя той же substring-семантики
		if len(p.Keywords) == 0 {
			return nil, fmt.Errorf("%s pattern without keywords", p.Type)
		}
		terms := make([]string, len(p.Keywords))
		for i, k := range p.Keywords {
			terms[i] = strings.ToLower(k)
		}
		return &keywordMatcher{terms: terms}, nil

	case "regex":
		if len(p.Patterns) == 0 {
			return nil, fmt.Errorf("regex pattern without expressions")
		}
		res := make([]*regexp.Regexp, 0, len(p.Patterns))
		for _, expr := range p.Patterns {
			// Компилируем на парсинге: битый regex = битое правило целиком
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("invalid regex %q: %w", expr, err)
			}
			res = append(res, re)
		}
		return &regexMatcher{res: res}, nil

	case "required_text":
		if len(p.Required) == 0 {
			return nil, fmt.Errorf("required_text pattern without values")
		}
		terms := make([]string, len(p.Required))
		for i, k := range p.Required {
			terms[i] = strings.ToLower(k)
		}
		return &requiredTextMatcher{terms: terms}, nil

	case "response_time":
		if p.MaxSeconds <= 0 {
			return nil, fmt.Errorf("response_time pattern requires positive max_seconds")
		}
		return &responseTimeMatcher{maxSeconds: p.MaxSeconds}, nil

	default:
		return nil, fmt.Errorf("unknown pattern type %q", p.Type)
	}
}

// keywordMatcher — case-insensitive поиск подстрок в тексте ответа.
type keywordMatcher struct {
	terms []string
}

func (m *keywordMatcher) Match(inter domain.Interaction) (bool, string) {
	response := strings.ToLower(inter.Response)
	for _, t := range m.terms {
		if strings.Contains(response, t) {
			return true, fmt.Sprintf("response contains prohibited text %q", t)
		}
	}
	return false, ""
}

// regexMatcher — любой из паттернов против текста ответа.
type regexMatcher struct {
	res []*regexp.Regexp
}

func (m *regexMatcher) Match(inter domain.Interaction) (bool, string) {
	for _, re := range m.res {
		if re.MatchString(inter.Response) {
			return true, fmt.Sprintf("response matches prohibited pattern %q", re.String())
		}
	}
	return false, ""
}

// requiredTextMatcher — нарушение, если обязательный текст отсутствует
// (например, дисклеймер "не является финансовой консультацией").
type requiredTextMatcher struct {
	terms []string
}

func (m *requiredTextMatcher) Match(inter domain.Interaction) (bool, string) {
	response := strings.ToLower(inter.Response)
	var missing []string
	for _, t := range m.terms {
		if !strings.Contains(response, t) {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return true, fmt.Sprintf("response missing required text: %s", strings.Join(missing, ", "))
	}
	return false, ""
}

// responseTimeMatcher — порог по метаданным взаимодействия.
type responseTimeMatcher struct {
	maxSeconds float64
}

func (m *responseTimeMatcher) Match(inter domain.Interaction) (bool, string) {
	if inter.ResponseTimeSeconds > m.maxSeconds {
		return true, fmt.Sprintf("response time %.2fs exceeds limit %.2fs", inter.ResponseTimeSeconds, m.maxSeconds)
	}
	return false, ""
}
