// Package bruteforce provides a vector index that answers top-K queries by
// scanning all vectors and scoring via cosine similarity. It supports a
// compact binary format used for model files and the vector_storage table.
package bruteforce
