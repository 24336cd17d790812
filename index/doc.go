// Package index defines a minimal abstraction for vector indexes that can be
// built from a corpus, queried for top-K matches, and serialized for
// persistence. Implementations in this module include a brute-force baseline.
package index
