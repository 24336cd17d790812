package vecutil

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/simsearch/engine"
	"github.com/viant/simsearch/modelstore"
	"github.com/viant/simsearch/similarity"
	"github.com/viant/simsearch/vector"
)

// letterEmbed counts occurrences of a, b and c.
func letterEmbed(_ context.Context, text string) (similarity.Vector, error) {
	counts := make([]float32, 3)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'c' {
			counts[r-'a']++
		}
	}
	return similarity.Dense(counts), nil
}

func newStore(t *testing.T, dsn string) *vector.SQLiteStore {
	t.Helper()
	db, err := engine.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := vector.NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestIndex_UpsertQueryText(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, ":memory:")
	ix, err := NewIndex(store, "letters", letterEmbed)
	require.NoError(t, err)

	require.NoError(t, ix.UpsertDocumentsText(ctx, []Document{
		{ID: 1, Content: "aaa", Meta: `{"k":1}`},
		{ID: 2, Content: "bbb"},
		{ID: 3, Content: "ab"},
	}))

	got, err := ix.QueryText(ctx, "a", 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "aaa", got[0].Content)
	assert.Equal(t, `{"k":1}`, got[0].Meta)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, int64(3), got[1].ID)
	assert.InDelta(t, 0.7071, got[1].Score, 1e-4)
}

func TestIndex_CacheFollowsWrites(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, ":memory:")
	cache, err := NewIndexCache(4)
	require.NoError(t, err)
	ix, err := NewIndex(store, "letters", letterEmbed, WithCache(cache), WithShards(2))
	require.NoError(t, err)

	require.NoError(t, ix.UpsertDocumentsText(ctx, []Document{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}}))
	got, err := ix.QueryText(ctx, "a", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, cache.Len())

	_, err = ix.QueryText(ctx, "a", 10, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len(), "unchanged dataset reuses the cached index")

	require.NoError(t, ix.UpsertDocumentsText(ctx, []Document{{ID: 3, Content: "aa"}}))
	got, err = ix.QueryText(ctx, "a", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{1, 3}, []int64{got[0].ID, got[1].ID})
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, ix.DeleteDocuments(ctx, []int64{1}))
	got, err = ix.QueryText(ctx, "a", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)
}

func TestIndex_WarmStartFromPersistedModel(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, filepath.Join(t.TempDir(), "warm.sqlite"))
	_, err := store.AddDocuments(ctx, []vector.Document{
		{Dataset: "d", ID: 1, Vector: similarity.Dense([]float32{1, 0})},
		{Dataset: "d", ID: 2, Vector: similarity.Dense([]float32{0, 1})},
	})
	require.NoError(t, err)
	_, err = modelstore.Reindex(ctx, store.DB(), store, "d", 0)
	require.NoError(t, err)

	ix, err := NewIndex(store, "d", nil, WithPersistedModels(store.DB()))
	require.NoError(t, err)
	got, err := ix.Query(ctx, similarity.Dense([]float32{0, 3}), 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestIndex_Errors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, ":memory:")

	_, err := NewIndex(nil, "d", nil)
	assert.Error(t, err)
	_, err = NewIndex(store, "", nil)
	assert.Error(t, err)

	ix, err := NewIndex(store, "d", nil)
	require.NoError(t, err)
	assert.Error(t, ix.UpsertDocumentsText(ctx, []Document{{ID: 1, Content: "a"}}))
	_, err = ix.QueryText(ctx, "a", 1, 0)
	assert.Error(t, err)

	_, err = store.AddDocuments(ctx, []vector.Document{{Dataset: "d", ID: 1, Vector: similarity.Dense([]float32{1, 0})}})
	require.NoError(t, err)
	_, err = ix.Query(ctx, similarity.Dense([]float32{1, 0, 0}), 1, 0)
	assert.ErrorIs(t, err, similarity.ErrDimensionMismatch)
	_, err = ix.Query(ctx, similarity.Dense([]float32{1, 0}), -1, 0)
	assert.ErrorIs(t, err, similarity.ErrInvalidArgument)
}
