package vector

import (
	"context"
	"database/sql"

	"github.com/viant/simsearch/vecsync"
)

// DocsTable is the name of the documents table.
const DocsTable = "docs"

const docsSchema = `
CREATE TABLE IF NOT EXISTS docs (
    dataset_id TEXT NOT NULL,
    id         INTEGER NOT NULL,
    content    TEXT,
    meta       TEXT,
    dim        INTEGER NOT NULL,
    embedding  BLOB,
    PRIMARY KEY(dataset_id, id)
);
`

// EnsureSchema creates the documents table and installs the change triggers
// that advance the per-dataset SCN.
func EnsureSchema(db *sql.DB) error {
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, docsSchema); err != nil {
		return err
	}
	return vecsync.Install(ctx, db, vecsync.Config{ShadowTable: DocsTable})
}
