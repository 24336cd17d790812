// Package engine opens databases with the pure-Go modernc.org/sqlite driver
// and registers the vector SQL scalar functions (vec_cosine, vec_l2) that
// operate on vectors encoded by similarity.Vector.MarshalBinary.
package engine
