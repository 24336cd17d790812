package vec

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"modernc.org/sqlite/vtab"

	"github.com/viant/simsearch/modelstore"
	"github.com/viant/simsearch/similarity"
	"github.com/viant/simsearch/vector"
	"github.com/viant/simsearch/vecutil"
)

// Module implements vtab.Module for the vec virtual table. Every table
// instance ranks datasets of the shared document store.
type Module struct {
	db    *sql.DB
	store *vector.SQLiteStore
	cache *vecutil.IndexCache
}

// Table represents a single vec virtual table instance.
type Table struct {
	module    *Module
	tableName string
	shards    int
}

const (
	colDataset = iota
	colDoc
	colScore
	colK
)

// IdxNum plan bits; zero scans the dataset.
const (
	planMatch = 1 << iota
	planScore
	planK
)

// Register registers the vec virtual table module with db and ensures the
// document and model schemas exist, so no DDL runs inside a scan.
func Register(db *sql.DB) error {
	store, err := vector.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	if err := modelstore.EnsureSchema(context.Background(), db); err != nil {
		return err
	}
	cache, err := vecutil.NewIndexCache(vecutil.DefaultCacheSize)
	if err != nil {
		return err
	}
	if err := vtab.RegisterModule(db, "vec", &Module{db: db, store: store, cache: cache}); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	return nil
}

// Create initializes a vec table instance.
// Usage: CREATE VIRTUAL TABLE t USING vec([doc_column][, shards=N]).
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

// Connect attaches to an existing vec table instance.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *Module) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec: expects at least 3 args, got %d", len(args))
	}
	if err := ctx.EnableConstraintSupport(); err != nil {
		return nil, fmt.Errorf("vec: EnableConstraintSupport failed: %w", err)
	}
	col := "doc_id"
	optStart := 3
	if len(args) > 3 {
		a := strings.TrimSpace(args[3])
		if a != "" && !strings.Contains(a, "=") {
			col = a
			optStart = 4
		}
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(dataset_id TEXT, %s INTEGER, match_score REAL HIDDEN, k INTEGER HIDDEN)", args[2], col)); err != nil {
		return nil, err
	}
	return &Table{module: m, tableName: args[2], shards: parseShards(args[optStart:])}, nil
}

func parseShards(args []string) int {
	for _, raw := range args {
		key, val, ok := strings.Cut(strings.TrimSpace(raw), "=")
		if !ok || strings.ToLower(strings.TrimSpace(key)) != "shards" {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// BestIndex pushes down dataset_id =, MATCH, match_score >= and k =.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	var dataset, match, score, k *vtab.Constraint
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		switch {
		case c.Column == colDataset && c.Op == vtab.OpEQ:
			dataset = c
		case c.Column == colDoc && c.Op == vtab.OpMATCH:
			match = c
		case c.Column == colScore && c.Op == vtab.OpGE:
			score = c
		case c.Column == colK && c.Op == vtab.OpEQ:
			k = c
		}
	}
	if dataset == nil {
		return fmt.Errorf("vec: dataset_id constraint required")
	}
	nextArg := 0
	use := func(c *vtab.Constraint) {
		c.ArgIndex = nextArg
		c.Omit = true
		nextArg++
	}
	use(dataset)
	info.IdxNum = 0
	if match == nil {
		return nil
	}
	use(match)
	info.IdxNum = planMatch
	if score != nil {
		use(score)
		info.IdxNum |= planScore
	}
	if k != nil {
		use(k)
		info.IdxNum |= planK
	}
	return nil
}

// Open allocates a new cursor.
func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

// Disconnect cleans up per-connection resources.
func (t *Table) Disconnect() error { return nil }

// Destroy drops nothing; documents live in the store.
func (t *Table) Destroy() error { return nil }

type row struct {
	id       int64
	score    float64
	hasScore bool
}

// Cursor scans results from a vec table.
type Cursor struct {
	table   *Table
	dataset string
	k       int64
	rows    []row
	pos     int
}

// Filter computes the result set based on idxNum/vals.
func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows, c.pos, c.dataset, c.k = nil, 0, "", 0
	if len(vals) == 0 || vals[0] == nil {
		return fmt.Errorf("vec: dataset_id argument is required")
	}
	dataset, err := asString(vals[0])
	if err != nil {
		return err
	}
	c.dataset = dataset
	ctx := context.Background()

	if idxNum&planMatch == 0 {
		corpus, err := c.table.module.store.Corpus(ctx, dataset)
		if err != nil {
			return err
		}
		for _, doc := range corpus {
			c.rows = append(c.rows, row{id: doc.ID})
		}
		return nil
	}

	if len(vals) < 2 || vals[1] == nil {
		return fmt.Errorf("vec: MATCH argument is required")
	}
	minScore := math.Inf(-1)
	maxCount := math.MaxInt32
	next := 2
	if idxNum&planScore != 0 {
		if minScore, err = asFloat(vals[next]); err != nil {
			return err
		}
		next++
	}
	if idxNum&planK != 0 {
		if maxCount, err = asCount(vals[next]); err != nil {
			return err
		}
		c.k = int64(maxCount)
	}

	ix, err := vecutil.NewIndex(c.table.module.store, dataset, nil,
		vecutil.WithCache(c.table.module.cache),
		vecutil.WithShards(c.table.shards),
		vecutil.WithPersistedModels(c.table.module.db),
	)
	if err != nil {
		return err
	}
	dim, err := ix.Dim(ctx)
	if err != nil {
		return err
	}
	query, err := decodeMatchArg(dim, vals[1])
	if err != nil {
		return err
	}
	hits, err := ix.Rank(ctx, query, maxCount, minScore)
	if err != nil {
		return err
	}
	c.rows = make([]row, 0, len(hits))
	for _, h := range hits {
		c.rows = append(c.rows, row{id: h.ID, score: h.Score, hasScore: true})
	}
	return nil
}

func decodeMatchArg(dim int, v interface{}) (similarity.Vector, error) {
	switch val := v.(type) {
	case []byte:
		var out similarity.Vector
		if err := out.UnmarshalBinary(val); err != nil {
			return similarity.Vector{}, fmt.Errorf("vec: MATCH blob: %w", err)
		}
		return out, nil
	case string:
		return vecutil.ParseVector(dim, val)
	default:
		return similarity.Vector{}, fmt.Errorf("vec: expected MATCH arg as BLOB or string, got %T", v)
	}
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

// Column returns the value of a column in the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("vec: Column out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	r := c.rows[c.pos]
	switch col {
	case colDataset:
		return c.dataset, nil
	case colDoc:
		return r.id, nil
	case colScore:
		if !r.hasScore {
			return nil, nil
		}
		return r.score, nil
	case colK:
		if c.k == 0 {
			return nil, nil
		}
		return c.k, nil
	}
	return nil, fmt.Errorf("vec: unsupported column %d", col)
}

// Rowid returns the document id of the current row.
func (c *Cursor) Rowid() (int64, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return 0, fmt.Errorf("vec: Rowid out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	return c.rows[c.pos].id, nil
}

// Close releases resources.
func (c *Cursor) Close() error { c.rows = nil; c.pos = 0; return nil }

func asFloat(v vtab.Value) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	default:
		return 0, fmt.Errorf("vec: expected numeric value, got %T", v)
	}
}

// asCount converts k to a result count; it must be a whole number within int32.
func asCount(v vtab.Value) (int, error) {
	k, err := asFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(k) || k != math.Trunc(k) || k < 0 || k > math.MaxInt32 {
		return 0, fmt.Errorf("vec: %w: k must be a non-negative integer, got %v", similarity.ErrInvalidArgument, v)
	}
	return int(k), nil
}

func asString(v vtab.Value) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("vec: expected TEXT value, got %T", v)
	}
}
