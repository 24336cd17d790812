// Package vecsync maintains a per-dataset system change number (SCN) and a
// row-level change log for a document table. Triggers installed on the table
// advance the SCN on every insert, update and delete, so readers can tell
// whether a corpus snapshot (and any index built from it) is still current.
package vecsync
