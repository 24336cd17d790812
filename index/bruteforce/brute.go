package bruteforce

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/viant/simsearch/index"
	"github.com/viant/simsearch/similarity"
)

const (
	magic   = "SSBF"
	version = uint16(1)

	minEntrySize = 12 + 8
)

// Index is a brute-force vector index implementing cosine similarity.
type Index struct {
	corpus similarity.Corpus
	dim    int
	shards int
}

// New creates an empty index. When shards > 1 queries score the corpus
// concurrently.
func New(shards int) *Index { return &Index{shards: shards} }

// Build validates and stores a copy of corpus.
func (i *Index) Build(corpus similarity.Corpus) error {
	if len(corpus) == 0 {
		i.corpus, i.dim = nil, 0
		return nil
	}
	dim := corpus[0].Vector.Dim
	seen := make(map[int64]struct{}, len(corpus))
	for _, doc := range corpus {
		if doc.Vector.Dim != dim {
			return &similarity.DimensionMismatchError{DocumentID: doc.ID, Expected: dim, Actual: doc.Vector.Dim}
		}
		if _, ok := seen[doc.ID]; ok {
			return fmt.Errorf("bruteforce: %w: duplicate document id %d", similarity.ErrInvalidArgument, doc.ID)
		}
		seen[doc.ID] = struct{}{}
	}
	i.corpus = append(similarity.Corpus(nil), corpus...)
	i.dim = dim
	return nil
}

// Query returns top-k by cosine similarity.
func (i *Index) Query(query similarity.Vector, k int, minSimilarity float64) ([]similarity.Match, error) {
	if i.shards > 1 {
		return similarity.SearchParallel(context.Background(), i.corpus, query, k, minSimilarity, i.shards)
	}
	return similarity.Search(i.corpus, query, k, minSimilarity)
}

// Len reports the number of indexed documents.
func (i *Index) Len() int { return len(i.corpus) }

// Dim reports the indexed dimensionality.
func (i *Index) Dim() int { return i.dim }

// MarshalBinary stores: magic(4), version(uint16), dim(uint32), n(uint32), then
// for each item: id(int64), blobLen(uint32), vector blob.
func (i *Index) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 14+len(i.corpus)*32)
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint16(out, version)
	out = binary.LittleEndian.AppendUint32(out, uint32(i.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(i.corpus)))
	for _, doc := range i.corpus {
		blob, err := doc.Vector.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = binary.LittleEndian.AppendUint64(out, uint64(doc.ID))
		out = binary.LittleEndian.AppendUint32(out, uint32(len(blob)))
		out = append(out, blob...)
	}
	return out, nil
}

// UnmarshalBinary restores the index from bytes.
func (i *Index) UnmarshalBinary(data []byte) error {
	if len(data) < 14 || string(data[:4]) != magic {
		return errors.New("bruteforce: invalid data")
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != version {
		return fmt.Errorf("bruteforce: unsupported version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(data[6:10]))
	n := int(binary.LittleEndian.Uint32(data[10:14]))
	off := 14
	// Each entry holds at least an id, a length and an empty vector header.
	if n > (len(data)-off)/minEntrySize {
		return fmt.Errorf("bruteforce: document count %d exceeds data length %d", n, len(data))
	}
	corpus := make(similarity.Corpus, 0, n)
	for idx := 0; idx < n; idx++ {
		if off+12 > len(data) {
			return errors.New("bruteforce: truncated")
		}
		id := int64(binary.LittleEndian.Uint64(data[off:]))
		blobLen := int(binary.LittleEndian.Uint32(data[off+8:]))
		off += 12
		if off+blobLen > len(data) {
			return errors.New("bruteforce: truncated vec")
		}
		doc := similarity.Document{ID: id}
		if err := doc.Vector.UnmarshalBinary(data[off : off+blobLen]); err != nil {
			return fmt.Errorf("bruteforce: document %d: %w", id, err)
		}
		off += blobLen
		if doc.Vector.Dim != dim {
			return &similarity.DimensionMismatchError{DocumentID: id, Expected: dim, Actual: doc.Vector.Dim}
		}
		corpus = append(corpus, doc)
	}
	if off != len(data) {
		return errors.New("bruteforce: trailing data")
	}
	return i.Build(corpus)
}

// Ensure Index satisfies the index.Index interface.
var _ index.Index = (*Index)(nil)
