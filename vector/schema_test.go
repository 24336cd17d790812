package vector

import (
	"testing"

	"github.com/viant/simsearch/engine"
)

// TestEnsureSchema verifies that EnsureSchema creates the docs table without
// error on a fresh in-memory database and is safe to call twice.
func TestEnsureSchema(t *testing.T) {
	db, err := engine.Open(":memory:")
	if err != nil {
		t.Fatalf("engine.Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema (again) failed: %v", err)
	}

	// Sanity check: we can insert a row into docs.
	if _, err := db.Exec(`INSERT INTO docs(dataset_id, id, content, meta, dim, embedding) VALUES('d', 1, 'hello', '{}', 0, X'')`); err != nil {
		t.Fatalf("insert into docs failed: %v", err)
	}
}
