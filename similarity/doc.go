// Package similarity ranks a corpus of sparse document vectors against a query
// vector by cosine similarity. Search is a pure function: it validates the
// inputs, scores every document, orders the scores descending with ascending
// document id as tie-break, and returns the top results at or above a minimum
// similarity. SearchParallel splits the scoring step across shards for large
// corpora while keeping the same result.
package similarity
