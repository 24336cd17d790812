// Package modelstore persists built search indexes ("models") so they can be
// reused without rescanning the document table. Models are stored
// zstd-compressed in the vector_storage table, tagged with the dataset SCN
// they were built at, and can also be saved to and loaded from plain files.
package modelstore
