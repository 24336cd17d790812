// Package vector defines the document record model and the corpus provider
// used by search. It includes:
//   - Document model and Store interface
//   - SQLiteStore: dataset-scoped durable storage for documents
//   - Schema helpers to create the docs table and its change triggers
package vector
