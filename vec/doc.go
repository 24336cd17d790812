// Package vec implements a SQLite virtual table for cosine similarity search
// with MATCH semantics over the documents of a vector.SQLiteStore.
//
//	CREATE VIRTUAL TABLE search USING vec(doc_id, shards=4);
//	SELECT doc_id, match_score FROM search
//	WHERE dataset_id = 'news' AND doc_id MATCH '[1,0,0]' AND match_score >= 0.1 AND k = 10;
//
// Features:
//   - MATCH accepts an encoded vector BLOB or the text forms of vecutil.ParseVector
//   - hidden match_score (>= pushdown) and k (result limit) columns
//   - rows arrive best first, ties by ascending doc id
//   - built indexes are cached per dataset SCN and warm-started from vector_storage
//
// Scans run nested queries through the *sql.DB passed to Register, so the pool
// needs more than one connection; in-memory databases pinned to a single
// connection cannot serve the virtual table.
package vec
