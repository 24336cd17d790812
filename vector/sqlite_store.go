package vector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/viant/simsearch/similarity"
	"github.com/viant/simsearch/vecsync"
)

// SQLiteStore implements Store on top of a SQLite database. Documents live in
// the docs table keyed by (dataset_id, id); every write advances the dataset
// SCN through the vecsync triggers.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed Store. It ensures the docs
// schema and change triggers exist in the provided database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("vector: db is nil")
	}
	if err := EnsureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// SCN returns the current change number of dataset.
func (s *SQLiteStore) SCN(ctx context.Context, dataset string) (int64, error) {
	return vecsync.CurrentSCN(ctx, s.db, "", dataset)
}

// AddDocuments upserts documents into the docs table in one transaction.
// Every document must carry a dataset and share the dimensionality already
// stored for that dataset (or of the first document in the batch).
func (s *SQLiteStore) AddDocuments(ctx context.Context, docs []Document) ([]int64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	dims := map[string]int{}
	for _, d := range docs {
		if d.Dataset == "" {
			return nil, fmt.Errorf("vector: document %d has no dataset", d.ID)
		}
		want, ok := dims[d.Dataset]
		if !ok {
			if want, ok, err = datasetDim(ctx, tx, d.Dataset); err != nil {
				return nil, err
			}
			if !ok {
				want = d.Vector.Dim
			}
			dims[d.Dataset] = want
		}
		if d.Vector.Dim != want {
			return nil, &similarity.DimensionMismatchError{DocumentID: d.ID, Expected: want, Actual: d.Vector.Dim}
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO docs(dataset_id, id, content, meta, dim, embedding) VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(dataset_id, id) DO UPDATE SET
  content = excluded.content,
  meta = excluded.meta,
  dim = excluded.dim,
  embedding = excluded.embedding`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		blob, err := d.Vector.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, d.Dataset, d.ID, d.Content, d.Metadata, d.Vector.Dim, blob); err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func datasetDim(ctx context.Context, tx *sql.Tx, dataset string) (int, bool, error) {
	var dim int
	err := tx.QueryRowContext(ctx, `SELECT dim FROM docs WHERE dataset_id = ? LIMIT 1`, dataset).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return dim, true, nil
}

// Corpus loads every vector of dataset ordered by id.
func (s *SQLiteStore) Corpus(ctx context.Context, dataset string) (similarity.Corpus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM docs WHERE dataset_id = ? ORDER BY id`, dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var corpus similarity.Corpus
	for rows.Next() {
		var doc similarity.Document
		var blob []byte
		if err := rows.Scan(&doc.ID, &blob); err != nil {
			return nil, err
		}
		if err := doc.Vector.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("vector: document %d in %q: %w", doc.ID, dataset, err)
		}
		corpus = append(corpus, doc)
	}
	return corpus, rows.Err()
}

// Get loads documents by id, preserving the order of ids and skipping ids
// that do not exist.
func (s *SQLiteStore) Get(ctx context.Context, dataset string, ids []int64) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, dataset)
	for _, id := range ids {
		args = append(args, id)
	}
	q := fmt.Sprintf(`SELECT id, content, meta, embedding FROM docs WHERE dataset_id = ? AND id IN (%s)`, placeholders)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]Document, len(ids))
	for rows.Next() {
		d := Document{Dataset: dataset}
		var content, meta sql.NullString
		var blob []byte
		if err := rows.Scan(&d.ID, &content, &meta, &blob); err != nil {
			return nil, err
		}
		if err := d.Vector.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("vector: document %d in %q: %w", d.ID, dataset, err)
		}
		d.Content, d.Metadata = content.String, meta.String
		byID[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(byID))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Remove deletes a document by id from dataset.
func (s *SQLiteStore) Remove(ctx context.Context, dataset string, id int64) error {
	if dataset == "" {
		return fmt.Errorf("vector: Remove called with empty dataset")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM docs WHERE dataset_id = ? AND id = ?`, dataset, id)
	return err
}

// Datasets lists the distinct datasets in the docs table.
func (s *SQLiteStore) Datasets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT dataset_id FROM docs ORDER BY dataset_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Ensure SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)
