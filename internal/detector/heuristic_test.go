package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHeuristicFabricatedAttributionScoresHigh(t *testing.T) {
	h := NewHeuristic(zap.NewNop())

	fabricated, err := h.Score(context.Background(),
		"Who invented email?",
		"Steve Jobs invented email in 1998 while working at Apple. This is a proven fact.")
	require.NoError(t, err)

	hedged, err := h.Score(context.Background(),
		"Who invented email?",
		"Email may have emerged gradually; according to most histories, Ray Tomlinson sent the first networked message.")
	require.NoError(t, err)

	assert.Greater(t, fabricated, 0.5)
	assert.Less(t, hedged, fabricated)
}

func TestHeuristicFakeCitationsRaiseRisk(t *testing.T) {
	h := NewHeuristic(zap.NewNop())

	withFake, err := h.Score(context.Background(), "q",
		"See the study at https://example.com/research for details.")
	require.NoError(t, err)

	withReal, err := h.Score(context.Background(), "q",
		"See the study at https://arxiv.org/abs/2101.00001 for details.")
	require.NoError(t, err)

	assert.Greater(t, withFake, withReal)
}

func TestHeuristicBoundsAndDeterminism(t *testing.T) {
	h := NewHeuristic(zap.NewNop())

	inputs := []string{
		"",
		"Yes.",
		"Albert Einstein invented the telephone in 1876. Thomas Edison created the internet in 1905. This is 100% proven fact, guaranteed, without a doubt.",
	}
	for _, resp := range inputs {
		a, err := h.Score(context.Background(), "q", resp)
		require.NoError(t, err)
		b, err := h.Score(context.Background(), "q", resp)
		require.NoError(t, err)

		assert.Equal(t, a, b, "детерминизм: одинаковый вход — одинаковый скор")
		assert.GreaterOrEqual(t, a, 0.0)
		assert.LessOrEqual(t, a, 1.0)
	}
}

func TestHeuristicEmptyResponseIsZero(t *testing.T) {
	h := NewHeuristic(zap.NewNop())
	score, err := h.Score(context.Background(), "q", "   ")
	require.NoError(t, err)
	assert.Zero(t, score)
}
