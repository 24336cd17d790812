package vecadmin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"modernc.org/sqlite/vtab"

	"github.com/viant/simsearch/modelstore"
	"github.com/viant/simsearch/vector"
)

// Module provides administrative operations via a virtual table.
// Usage:
//
//	CREATE VIRTUAL TABLE vec_admin USING vec_admin(op);
//	SELECT op FROM vec_admin WHERE op MATCH 'news'; -- rebuild and persist the model
//
// Returns one row per dataset, op='reindexed:<dataset>:<scn>:<count>'. MATCH
// '*' reindexes every dataset.
type Module struct {
	db     *sql.DB
	store  *vector.SQLiteStore
	shards int
}

// Table is a vec_admin table instance.
type Table struct{ module *Module }

// Cursor iterates operation results.
type Cursor struct {
	table *Table
	rows  []string
	pos   int
}

// Register registers the vec_admin module with db. shards is passed to the
// rebuilt indexes.
func Register(db *sql.DB, shards int) error {
	store, err := vector.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	if err := modelstore.EnsureSchema(context.Background(), db); err != nil {
		return err
	}
	if err := vtab.RegisterModule(db, "vec_admin", &Module{db: db, store: store, shards: shards}); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	return nil
}

// Create declares the single op column.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

// Connect declares the single op column.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *Module) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec_admin: need at least 3 args")
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(op TEXT)", args[2])); err != nil {
		return nil, err
	}
	return &Table{module: m}, nil
}

// BestIndex pushes down MATCH on op.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if c.Usable && c.Column == 0 && c.Op == vtab.OpMATCH {
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = 1
			return nil
		}
	}
	info.IdxNum = 0
	return nil
}

// Open allocates a new cursor.
func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

// Disconnect is a no-op.
func (t *Table) Disconnect() error { return nil }

// Destroy is a no-op.
func (t *Table) Destroy() error { return nil }

// Filter runs the requested operation; without MATCH it yields no rows.
func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows, c.pos = nil, 0
	if idxNum != 1 || len(vals) == 0 || vals[0] == nil {
		return nil
	}
	target, ok := vals[0].(string)
	if !ok {
		return fmt.Errorf("vec_admin: MATCH expects a dataset name as TEXT")
	}
	rows, err := c.table.module.reindex(context.Background(), strings.TrimSpace(target))
	if err != nil {
		return err
	}
	c.rows = rows
	return nil
}

// Next advances the cursor.
func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

// Eof reports end-of-rows.
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

// Column returns the op result of the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("vec_admin: Column out of range")
	}
	if col == 0 {
		return c.rows[c.pos], nil
	}
	return nil, nil
}

// Rowid returns the 1-based row position.
func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }

// Close releases resources.
func (c *Cursor) Close() error { c.rows = nil; c.pos = 0; return nil }

// reindex rebuilds and persists the model of dataset, or of every dataset for "*".
func (m *Module) reindex(ctx context.Context, target string) ([]string, error) {
	if target == "" {
		return nil, fmt.Errorf("vec_admin: dataset is required")
	}
	datasets := []string{target}
	if target == "*" {
		var err error
		if datasets, err = m.store.Datasets(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		model, err := modelstore.Reindex(ctx, m.db, m.store, ds, m.shards)
		if err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("reindexed:%s:%d:%d", ds, model.SCN, model.Index.Len()))
	}
	return out, nil
}
