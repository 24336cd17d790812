package vecsync

import "time"

// LogEntry mirrors a single row in vec_shadow_log.
type LogEntry struct {
	DatasetID   string
	ShadowTable string
	SCN         int64
	Op          string
	DocumentID  int64
	Payload     []byte
	CreatedAt   time.Time
}

// Config names the tables used by Install.
type Config struct {
	// ShadowTable is the document table to watch (e.g. "docs" or "main.docs").
	ShadowTable string

	// SeqTable stores the next SCN per dataset; defaults to DefaultSeqTable.
	SeqTable string

	// LogTable receives change rows; defaults to DefaultLogTable.
	LogTable string
}

func (c Config) withDefaults() Config {
	if c.SeqTable == "" {
		c.SeqTable = DefaultSeqTable
	}
	if c.LogTable == "" {
		c.LogTable = DefaultLogTable
	}
	return c
}
