package vecsync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultLogTable is the change-log table that captures row-level SCN events.
	DefaultLogTable = "vec_shadow_log"

	// DefaultSeqTable stores the next SCN per dataset.
	DefaultSeqTable = "vec_dataset_scn"
)

// LogTableDDL returns the DDL for the change-log table, populated via triggers
// whenever the shadow table changes.
func LogTableDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
    dataset_id   TEXT NOT NULL,
    shadow_table TEXT NOT NULL,
    scn          INTEGER NOT NULL,
    op           TEXT NOT NULL,
    document_id  INTEGER NOT NULL,
    payload      BLOB NOT NULL,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(dataset_id, shadow_table, scn)
);`
}

// SeqTableDDL returns the DDL for tracking next SCN per dataset.
func SeqTableDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
    dataset_id TEXT PRIMARY KEY,
    next_scn   INTEGER NOT NULL
);`
}

// SQLiteShadowLogTriggers returns the trigger DDL statements required to capture
// inserts, updates, and deletes against a shadow table into the log table. The
// payload is serialized as JSON with a hex-encoded vector.
func SQLiteShadowLogTriggers(shadowTable, seqTable, logTable string) []string {
	if seqTable == "" {
		seqTable = DefaultSeqTable
	}
	if logTable == "" {
		logTable = DefaultLogTable
	}
	base := sanitizeIdentifier(shadowTable)
	payload := func(alias string) string {
		return fmt.Sprintf(`json_object(
        'dataset_id', %[1]s.dataset_id,
        'id', %[1]s.id,
        'content', %[1]s.content,
        'meta', %[1]s.meta,
        'embedding', lower(hex(%[1]s.embedding))
    )`, alias)
	}
	advance := func(alias string) string {
		return fmt.Sprintf(`INSERT INTO %[1]s(dataset_id, next_scn)
    VALUES (%[2]s.dataset_id, 1)
    ON CONFLICT(dataset_id) DO UPDATE SET next_scn = next_scn + 1;`, seqTable, alias)
	}
	scnExpr := func(alias string) string {
		return fmt.Sprintf(`(SELECT next_scn FROM %s WHERE dataset_id = %s.dataset_id)`, seqTable, alias)
	}
	trigger := func(suffix, event, op, alias string) string {
		return fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_%s AFTER %s ON %s
BEGIN
    %s
    INSERT INTO %s(dataset_id, shadow_table, scn, op, document_id, payload)
    VALUES (
        %s.dataset_id,
        '%s',
        %s,
        '%s',
        %s.id,
        %s
    );
END;`, base, suffix, event, shadowTable, advance(alias), logTable, alias, shadowTable, scnExpr(alias), op, alias, payload(alias))
	}
	return []string{
		trigger("ai", "INSERT", "insert", "NEW"),
		trigger("au", "UPDATE", "update", "NEW"),
		trigger("ad", "DELETE", "delete", "OLD"),
	}
}

// Install creates the sequence and log tables and the change triggers for cfg.ShadowTable.
func Install(ctx context.Context, db *sql.DB, cfg Config) error {
	if db == nil {
		return fmt.Errorf("vecsync: db is nil")
	}
	if cfg.ShadowTable == "" {
		return fmt.Errorf("vecsync: shadow table is required")
	}
	cfg = cfg.withDefaults()
	stmts := append([]string{SeqTableDDL(cfg.SeqTable), LogTableDDL(cfg.LogTable)},
		SQLiteShadowLogTriggers(cfg.ShadowTable, cfg.SeqTable, cfg.LogTable)...)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("vecsync: install on %s: %w", cfg.ShadowTable, err)
		}
	}
	return nil
}

// CurrentSCN returns the latest SCN recorded for dataset, or 0 if the dataset
// has never changed.
func CurrentSCN(ctx context.Context, db *sql.DB, seqTable, dataset string) (int64, error) {
	if seqTable == "" {
		seqTable = DefaultSeqTable
	}
	var scn int64
	err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT next_scn FROM %s WHERE dataset_id = ?", seqTable), dataset).Scan(&scn)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("vecsync: current scn for %q: %w", dataset, err)
	}
	return scn, nil
}

// Changes returns up to limit log entries for dataset with SCN greater than
// afterSCN, in SCN order. A non-positive limit returns all of them.
func Changes(ctx context.Context, db *sql.DB, logTable, dataset string, afterSCN int64, limit int) ([]LogEntry, error) {
	if logTable == "" {
		logTable = DefaultLogTable
	}
	q := fmt.Sprintf(`SELECT dataset_id, shadow_table, scn, op, document_id, payload, created_at
FROM %s WHERE dataset_id = ? AND scn > ? ORDER BY scn`, logTable)
	args := []interface{}{dataset, afterSCN}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vecsync: changes for %q: %w", dataset, err)
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var created interface{}
		if err := rows.Scan(&e.DatasetID, &e.ShadowTable, &e.SCN, &e.Op, &e.DocumentID, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = asTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}
}

func parseTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return replacer.Replace(name)
}
