package detector

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Heuristic — встроенный скорер без внешних зависимостей: чистый, быстрый,
// детерминированный. Это базовая реализация контракта Scorer; в проде вместо
// нее подключается внешняя модель через HTTPScorer, контракт тот же.
//
// Риск собирается как взвешенная сумма сигналов:
//   - атрибуции фактов конкретным персонам/датам (классическая фабрикация)
//   - сверхуверенные формулировки без оговорок
//   - неправдоподобные цитирования (битые или мусорные URL)
//
// Хеджирование («возможно», «according to») снижает итоговый риск.
type Heuristic struct {
	logger *zap.Logger
}

func NewHeuristic(logger *zap.Logger) *Heuristic {
	return &Heuristic{logger: logger.Named("heuristic-detector")}
}

// Веса сигналов (сумма = максимум риска 1.0)
const (
	weightAttribution = 0.45
	weightOverclaim   = 0.25
	weightCitation    = 0.20
	weightClarity     = 0.10
)

var (
	// "Steve Jobs invented email in 1998" — персона + фактологический глагол,
	// опционально с годом. Самый сильный сигнал фабрикации.
	attributionRe = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\s+(?:invented|created|discovered|founded|wrote|designed|developed)\b`)
	attrYearRe    = regexp.MustCompile(`\b(?:in|around|circa)\s+(?:1[0-9]{3}|20[0-9]{2})\b`)

	// Сверхуверенность: гарантии и абсолютные утверждения
	overclaimRe = regexp.MustCompile(`(?i)\b(?:guarantee[ds]?|always|never fails?|100%|definitely|absolutely certain|proven fact|without a doubt)\b`)

	// Хеджирование снижает риск: модель честно обозначает неуверенность
	hedgeRe = regexp.MustCompile(`(?i)\b(?:may|might|possibly|likely|according to|reportedly|i(?: a|')m not (?:sure|certain)|as far as i know)\b`)

	urlRe = regexp.MustCompile(`https?://[^\s)\]]+`)

	sentenceRe = regexp.MustCompile(`[.!?]+\s+`)
)

func (h *Heuristic) Score(ctx context.Context, query, response string) (float64, error) {
	if strings.TrimSpace(response) == "" {
		return 0, nil
	}

	risk := h.attributionRisk(response)*weightAttribution +
		h.overclaimRisk(response)*weightOverclaim +
		h.citationRisk(response)*weightCitation +
		weightClarity

	// Кредит за хеджирование
	if hedgeRe.MatchString(response) {
		risk -= weightClarity
	}

	if risk < 0 {
		risk = 0
	}
	if risk > 1 {
		risk = 1
	}
	return risk, nil
}

// attributionRisk — самый подозрительный из фрагментов по паттерну
// «персона + глагол факта». Год рядом с атрибуцией удваивает вес
// (конкретика без источника). Берется максимум, а не среднее: одна
// уверенная фабрикация не должна размываться длиной ответа.
func (h *Heuristic) attributionRisk(response string) float64 {
	var risk float64
	for _, s := range sentenceRe.Split(response, -1) {
		if !attributionRe.MatchString(s) {
			continue
		}
		score := 0.5
		if attrYearRe.MatchString(s) {
			score = 1.0
		}
		if score > risk {
			risk = score
		}
	}
	return risk
}

func (h *Heuristic) overclaimRisk(response string) float64 {
	hits := len(overclaimRe.FindAllString(response, -1))
	// Три и более сверхуверенных оборота = максимум сигнала
	risk := float64(hits) / 3
	if risk > 1 {
		risk = 1
	}
	return risk
}

// citationRisk — доля неправдоподобных URL среди всех цитирований.
// Нет цитирований — нет сигнала (0).
func (h *Heuristic) citationRisk(response string) float64 {
	urls := urlRe.FindAllString(response, -1)
	if len(urls) == 0 {
		return 0
	}

	fake := 0
	for _, u := range urls {
		if looksFakeURL(u) {
			fake++
		}
	}
	return float64(fake) / float64(len(urls))
}

func looksFakeURL(raw string) bool {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	host, _, _ := strings.Cut(trimmed, "/")
	host = strings.ToLower(host)

	if host == "" || !strings.Contains(host, ".") {
		return true
	}
	// Типичные заглушки, которые модели выдают за источники
	for _, marker := range []string{"example.com", "example.org", "localhost", "placeholder", "yourwebsite"} {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}
