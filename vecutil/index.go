package vecutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/viant/simsearch/index/bruteforce"
	"github.com/viant/simsearch/modelstore"
	"github.com/viant/simsearch/similarity"
	"github.com/viant/simsearch/vector"
)

// DefaultCacheSize is the number of built indexes kept by a default IndexCache.
const DefaultCacheSize = 16

// Source is a corpus provider that also exposes the per-dataset change number.
type Source interface {
	vector.Store
	SCN(ctx context.Context, dataset string) (int64, error)
}

// IndexCache keeps built indexes keyed by dataset and SCN. A write to a
// dataset advances its SCN, so stale entries are simply never hit again and
// age out of the LRU.
type IndexCache struct {
	lru *lru.Cache[string, *bruteforce.Index]
}

// NewIndexCache creates a cache holding up to size indexes.
func NewIndexCache(size int) (*IndexCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *bruteforce.Index](size)
	if err != nil {
		return nil, err
	}
	return &IndexCache{lru: c}, nil
}

// Len reports the number of cached indexes.
func (c *IndexCache) Len() int { return c.lru.Len() }

func cacheKey(dataset string, scn int64) string {
	return dataset + "|" + strconv.FormatInt(scn, 10)
}

// Index provides a higher-level, Pinecone-style API over one dataset of a
// Source. It remains vectorizer-agnostic by requiring an EmbedFunc supplied by
// the caller for the text methods.
type Index struct {
	Source    Source
	DatasetID string
	Embed     EmbedFunc

	cache   *IndexCache
	shards  int
	modelDB *sql.DB
}

// Option customizes an Index.
type Option func(*Index)

// WithCache shares an IndexCache between Index instances.
func WithCache(c *IndexCache) Option { return func(ix *Index) { ix.cache = c } }

// WithShards enables concurrent scoring across the given number of shards.
func WithShards(n int) Option { return func(ix *Index) { ix.shards = n } }

// WithPersistedModels lets the index warm-start from a fresh model stored by
// modelstore.Reindex in db.
func WithPersistedModels(db *sql.DB) Option { return func(ix *Index) { ix.modelDB = db } }

// NewIndex constructs an Index for dataset. embed may be nil when only vector
// methods are used.
func NewIndex(source Source, dataset string, embed EmbedFunc, opts ...Option) (*Index, error) {
	if source == nil {
		return nil, fmt.Errorf("vecutil: source is nil")
	}
	if dataset == "" {
		return nil, fmt.Errorf("vecutil: dataset is empty")
	}
	ix := &Index{Source: source, DatasetID: dataset, Embed: embed}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.cache == nil {
		c, err := NewIndexCache(DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		ix.cache = c
	}
	return ix, nil
}

// Document is a text document to be vectorized and stored.
type Document struct {
	ID      int64
	Content string
	Meta    string
}

// Match represents a single similarity search hit.
type Match struct {
	ID      int64
	Score   float64
	Content string
	Meta    string
}

// UpsertDocumentsText vectorizes Content with the Index's EmbedFunc and
// upserts the documents into the dataset.
func (ix *Index) UpsertDocumentsText(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if ix.Embed == nil {
		return fmt.Errorf("vecutil: EmbedFunc is nil on Index")
	}
	records := make([]vector.Document, 0, len(docs))
	for _, d := range docs {
		vec, err := ix.Embed(ctx, d.Content)
		if err != nil {
			return fmt.Errorf("vecutil: embed document %d: %w", d.ID, err)
		}
		records = append(records, vector.Document{Dataset: ix.DatasetID, ID: d.ID, Content: d.Content, Metadata: d.Meta, Vector: vec})
	}
	_, err := ix.Source.AddDocuments(ctx, records)
	return err
}

// DeleteDocuments removes documents with the given ids from the dataset.
func (ix *Index) DeleteDocuments(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := ix.Source.Remove(ctx, ix.DatasetID, id); err != nil {
			return err
		}
	}
	return nil
}

// Query ranks the dataset against query and returns up to k matches with
// score >= minSimilarity, enriched with content and metadata.
func (ix *Index) Query(ctx context.Context, query similarity.Vector, k int, minSimilarity float64) ([]Match, error) {
	hits, err := ix.Rank(ctx, query, k, minSimilarity)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	docs, err := ix.Source.Get(ctx, ix.DatasetID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]vector.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		d := byID[h.ID]
		out = append(out, Match{ID: h.ID, Score: h.Score, Content: d.Content, Meta: d.Metadata})
	}
	return out, nil
}

// Rank returns up to k (id, score) pairs without loading document content.
func (ix *Index) Rank(ctx context.Context, query similarity.Vector, k int, minSimilarity float64) ([]similarity.Match, error) {
	idx, err := ix.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Query(query, k, minSimilarity)
}

// Dim reports the dimensionality of the dataset, or 0 when it is empty.
func (ix *Index) Dim(ctx context.Context) (int, error) {
	idx, err := ix.ensureIndex(ctx)
	if err != nil {
		return 0, err
	}
	return idx.Dim(), nil
}

// QueryText vectorizes query with the Index's EmbedFunc and runs Query.
func (ix *Index) QueryText(ctx context.Context, query string, k int, minSimilarity float64) ([]Match, error) {
	if ix.Embed == nil {
		return nil, fmt.Errorf("vecutil: EmbedFunc is nil on Index")
	}
	vec, err := ix.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.Query(ctx, vec, k, minSimilarity)
}

func (ix *Index) ensureIndex(ctx context.Context) (*bruteforce.Index, error) {
	scn, err := ix.Source.SCN(ctx, ix.DatasetID)
	if err != nil {
		return nil, err
	}
	key := cacheKey(ix.DatasetID, scn)
	if idx, ok := ix.cache.lru.Get(key); ok {
		return idx, nil
	}
	if ix.modelDB != nil {
		model, fresh, err := modelstore.Load(ctx, ix.modelDB, ix.DatasetID, ix.shards)
		switch {
		case err == nil && fresh && model.SCN == scn:
			ix.cache.lru.Add(key, model.Index)
			return model.Index, nil
		case err != nil && !errors.Is(err, modelstore.ErrNotFound):
			return nil, err
		}
	}
	corpus, err := ix.Source.Corpus(ctx, ix.DatasetID)
	if err != nil {
		return nil, err
	}
	idx := bruteforce.New(ix.shards)
	if err := idx.Build(corpus); err != nil {
		return nil, err
	}
	ix.cache.lru.Add(key, idx)
	return idx, nil
}
