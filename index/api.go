package index

import "github.com/viant/simsearch/similarity"

// Index defines a vector index over a corpus snapshot with basic lifecycle
// methods: building from documents, top-K queries, and binary serialization
// for persistence.
type Index interface {
	// Build constructs the index from corpus. Document ids must be unique and
	// all vectors must share one dimensionality.
	Build(corpus similarity.Corpus) error

	// Query returns up to k matches with score >= minSimilarity, ordered by
	// descending cosine similarity and ascending id on ties.
	Query(query similarity.Vector, k int, minSimilarity float64) ([]similarity.Match, error)

	// Len reports the number of indexed documents.
	Len() int

	// Dim reports the dimensionality of the indexed vectors (0 when empty).
	Dim() int

	// MarshalBinary serializes the index into a byte slice.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary reconstructs the index from a serialized byte slice.
	UnmarshalBinary(data []byte) error
}
