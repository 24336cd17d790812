package similarity

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeDocs() Corpus {
	return Corpus{
		{ID: 1, Vector: Dense([]float32{1, 0, 0})},
		{ID: 2, Vector: Dense([]float32{0, 1, 0})},
		{ID: 3, Vector: Dense([]float32{1, 1, 0})},
	}
}

func TestSearch_Scenario(t *testing.T) {
	got, err := Search(threeDocs(), Dense([]float32{1, 0, 0}), 2, 0.1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, int64(3), got[1].ID)
	assert.InDelta(t, 1/math.Sqrt2, got[1].Score, 1e-6)
}

func TestSearch_AllScores(t *testing.T) {
	got, err := Search(threeDocs(), Dense([]float32{1, 0, 0}), 10, math.Inf(-1))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 3, 2}, ids(got))
	assert.Equal(t, 0.0, got[2].Score)
}

func TestSearch_EmptyCorpus(t *testing.T) {
	tests := []struct {
		name     string
		maxCount int
		min      float64
	}{
		{"Zero", 0, 0},
		{"Positive", 5, 0.5},
		{"Negative", -1, 0},
		{"NegativeThreshold", 3, -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Search(nil, Dense([]float32{1, 2}), tt.maxCount, tt.min)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestSearch_NegativeMaxCount(t *testing.T) {
	_, err := Search(threeDocs(), Dense([]float32{1, 0, 0}), -1, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestSearch_DuplicateID(t *testing.T) {
	corpus := Corpus{
		{ID: 7, Vector: Dense([]float32{1, 0})},
		{ID: 7, Vector: Dense([]float32{0, 1})},
	}
	_, err := Search(corpus, Dense([]float32{1, 0}), 2, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	corpus := Corpus{{ID: 42, Vector: Dense([]float32{1, 2, 3, 4, 5})}}
	got, err := Search(corpus, Dense([]float32{1, 2, 3, 4, 5, 6}), 1, 0)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	var dimErr *DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, int64(42), dimErr.DocumentID)
	assert.Equal(t, 6, dimErr.Expected)
	assert.Equal(t, 5, dimErr.Actual)
	assert.Contains(t, err.Error(), "document 42")
}

func TestSearch_ZeroQuery(t *testing.T) {
	got, err := Search(threeDocs(), Dense([]float32{0, 0, 0}), 3, math.Inf(-1))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, m := range got {
		assert.Equal(t, 0.0, m.Score)
		assert.False(t, math.IsNaN(m.Score))
	}
	// equal scores fall back to ascending ids
	assert.Equal(t, []int64{1, 2, 3}, ids(got))
}

func TestSearch_ZeroQueryFilteredByThreshold(t *testing.T) {
	got, err := Search(threeDocs(), Dense([]float32{0, 0, 0}), 3, 0.1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_TieBreakByID(t *testing.T) {
	corpus := Corpus{
		{ID: 9, Vector: Dense([]float32{2, 0})},
		{ID: 4, Vector: Dense([]float32{1, 0})},
		{ID: 6, Vector: Dense([]float32{3, 0})},
		{ID: 1, Vector: Dense([]float32{0, 1})},
	}
	got, err := Search(corpus, Dense([]float32{1, 0}), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 6, 9, 1}, ids(got))
}

func TestSearch_MaxCountZero(t *testing.T) {
	got, err := Search(threeDocs(), Dense([]float32{1, 0, 0}), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_DoesNotMutateCorpus(t *testing.T) {
	corpus := threeDocs()
	_, err := Search(corpus, Dense([]float32{0, 1, 0}), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, threeDocs(), corpus)
}

func TestSearch_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 50; round++ {
		dim := 1 + rng.Intn(12)
		corpus := randomCorpus(rng, 1+rng.Intn(40), dim)
		query := randomVector(rng, dim)
		maxCount := rng.Intn(50)
		minSim := rng.Float64()*1.2 - 0.2

		got, err := Search(corpus, query, maxCount, minSim)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), min(maxCount, len(corpus)))

		seen := map[int64]bool{}
		for i, m := range got {
			assert.GreaterOrEqual(t, m.Score, minSim)
			assert.False(t, seen[m.ID], "duplicate id %d", m.ID)
			seen[m.ID] = true
			if i > 0 {
				prev := got[i-1]
				assert.True(t, prev.Score > m.Score || (prev.Score == m.Score && prev.ID < m.ID),
					"order violated at %d: %+v then %+v", i, prev, m)
			}
		}

		again, err := Search(corpus, query, maxCount, minSim)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

func TestSearchParallel_MatchesSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	corpus := randomCorpus(rng, 500, 32)
	query := randomVector(rng, 32)

	want, err := Search(corpus, query, 25, 0.05)
	require.NoError(t, err)
	for _, shards := range []int{0, 1, 2, 7, 16} {
		got, err := SearchParallel(context.Background(), corpus, query, 25, 0.05, shards)
		require.NoError(t, err)
		assert.Equal(t, want, got, "shards=%d", shards)
	}
}

func TestSearchParallel_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	corpus := randomCorpus(rng, 64, 4)

	_, err := SearchParallel(context.Background(), corpus, randomVector(rng, 5), 3, 0, 4)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = SearchParallel(context.Background(), corpus, randomVector(rng, 4), -2, 0, 4)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SearchParallel(ctx, corpus, randomVector(rng, 4), 3, 0, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func ids(matches []Match) []int64 {
	out := make([]int64, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

func randomCorpus(rng *rand.Rand, n, dim int) Corpus {
	corpus := make(Corpus, n)
	for i := range corpus {
		corpus[i] = Document{ID: int64(i*3 + 1), Vector: randomVector(rng, dim)}
	}
	return corpus
}

// randomVector produces sparse non-negative term-weight style vectors with
// coarse weights so that ties actually occur.
func randomVector(rng *rand.Rand, dim int) Vector {
	values := make([]float32, dim)
	for i := range values {
		if rng.Intn(3) == 0 {
			values[i] = float32(rng.Intn(3))
		}
	}
	return Dense(values)
}
