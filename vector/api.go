package vector

import (
	"context"

	"github.com/viant/simsearch/similarity"
)

// Document represents a logical document stored in the vector store.
type Document struct {
	// Dataset names the corpus the document belongs to.
	Dataset string

	// ID is the externally assigned identifier, unique within Dataset.
	ID int64

	// Content holds the main text/body of the document.
	Content string

	// Metadata is an opaque JSON or structured payload associated with the
	// document.
	Metadata string

	// Vector is the feature representation of the document content.
	Vector similarity.Vector
}

// Store defines the corpus provider API consumed by search.
type Store interface {
	// AddDocuments inserts or replaces documents and returns their ids. All
	// documents of a dataset must share one dimensionality.
	AddDocuments(ctx context.Context, docs []Document) ([]int64, error)

	// Corpus returns the vectors of dataset ordered by id.
	Corpus(ctx context.Context, dataset string) (similarity.Corpus, error)

	// Get loads the documents with the given ids; missing ids are skipped.
	Get(ctx context.Context, dataset string, ids []int64) ([]Document, error)

	// Remove deletes the document with the given id from dataset.
	Remove(ctx context.Context, dataset string, id int64) error

	// Datasets lists the datasets holding at least one document.
	Datasets(ctx context.Context) ([]string, error)
}
