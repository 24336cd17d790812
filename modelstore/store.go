package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/viant/simsearch/index/bruteforce"
	"github.com/viant/simsearch/vector"
	"github.com/viant/simsearch/vecsync"
)

// KindBruteForce tags models built by index/bruteforce.
const KindBruteForce = "bruteforce"

// ErrNotFound is returned when no model is stored for a dataset.
var ErrNotFound = errors.New("modelstore: model not found")

const storageSchema = `
CREATE TABLE IF NOT EXISTS vector_storage (
    dataset_id TEXT PRIMARY KEY,
    scn        INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    model      BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// Model is a built index together with the dataset SCN it reflects.
type Model struct {
	Dataset string
	SCN     int64
	Index   *bruteforce.Index
}

// EnsureSchema creates the vector_storage table.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, storageSchema)
	return err
}

// Reindex rebuilds the brute-force index of dataset from store and persists it
// in vector_storage. The SCN is read before the corpus, so a concurrent write
// leaves the stored model marked stale rather than silently current.
func Reindex(ctx context.Context, db *sql.DB, store vector.Store, dataset string, shards int) (*Model, error) {
	if db == nil || store == nil {
		return nil, fmt.Errorf("modelstore: db and store are required")
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	scn, err := vecsync.CurrentSCN(ctx, db, "", dataset)
	if err != nil {
		return nil, err
	}
	corpus, err := store.Corpus(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("modelstore: load corpus %q: %w", dataset, err)
	}
	idx := bruteforce.New(shards)
	if err := idx.Build(corpus); err != nil {
		return nil, fmt.Errorf("modelstore: build %q: %w", dataset, err)
	}
	blob, err := Encode(idx)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO vector_storage(dataset_id, scn, kind, model, updated_at)
VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)`, dataset, scn, KindBruteForce, blob); err != nil {
		return nil, fmt.Errorf("modelstore: persist %q: %w", dataset, err)
	}
	return &Model{Dataset: dataset, SCN: scn, Index: idx}, nil
}

// Load returns the persisted model of dataset and whether it is fresh, i.e.
// built at the dataset's current SCN.
func Load(ctx context.Context, db *sql.DB, dataset string, shards int) (*Model, bool, error) {
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, false, err
	}
	var (
		scn  int64
		kind string
		blob []byte
	)
	err := db.QueryRowContext(ctx, `SELECT scn, kind, model FROM vector_storage WHERE dataset_id = ?`, dataset).Scan(&scn, &kind, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if kind != KindBruteForce {
		return nil, false, fmt.Errorf("modelstore: unsupported model kind %q", kind)
	}
	idx := bruteforce.New(shards)
	if err := Decode(blob, idx); err != nil {
		return nil, false, fmt.Errorf("modelstore: decode %q: %w", dataset, err)
	}
	current, err := vecsync.CurrentSCN(ctx, db, "", dataset)
	if err != nil {
		return nil, false, err
	}
	return &Model{Dataset: dataset, SCN: scn, Index: idx}, scn == current, nil
}

// Encode serializes and compresses idx.
func Encode(idx *bruteforce.Index) ([]byte, error) {
	raw, err := idx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode decompresses data and restores it into idx.
func Decode(data []byte, idx *bruteforce.Index) error {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return err
	}
	return idx.UnmarshalBinary(raw)
}

// SaveFile writes the compressed model to path, replacing it atomically.
func SaveFile(path string, idx *bruteforce.Index) error {
	blob, err := Encode(idx)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads a model written by SaveFile.
func LoadFile(path string, shards int) (*bruteforce.Index, error) {
	blob, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	idx := bruteforce.New(shards)
	if err := Decode(blob, idx); err != nil {
		return nil, fmt.Errorf("modelstore: decode %s: %w", path, err)
	}
	return idx, nil
}
