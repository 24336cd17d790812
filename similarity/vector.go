package similarity

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Vector is a sparse numeric vector over a fixed dimensionality Dim.
// Indices are strictly ascending and below Dim; Values holds the matching
// non-zero weights.
type Vector struct {
	Dim     int
	Indices []int32
	Values  []float32
}

// Dense builds a Vector from a dense slice, dropping zero entries.
func Dense(values []float32) Vector {
	v := Vector{Dim: len(values)}
	for i, w := range values {
		if w == 0 {
			continue
		}
		v.Indices = append(v.Indices, int32(i))
		v.Values = append(v.Values, w)
	}
	return v
}

// NewSparse validates and builds a Vector from parallel index/value slices.
// Indices must be strictly ascending and within [0, dim).
func NewSparse(dim int, indices []int32, values []float32) (Vector, error) {
	if dim < 0 {
		return Vector{}, invalidArgument("negative dimension %d", dim)
	}
	if len(indices) != len(values) {
		return Vector{}, invalidArgument("indices and values length mismatch: %d != %d", len(indices), len(values))
	}
	v := Vector{Dim: dim}
	prev := int32(-1)
	for i, idx := range indices {
		if idx <= prev {
			return Vector{}, invalidArgument("indices not strictly ascending at position %d", i)
		}
		if int(idx) >= dim {
			return Vector{}, invalidArgument("index %d out of range for dim %d", idx, dim)
		}
		prev = idx
		if values[i] == 0 {
			continue
		}
		v.Indices = append(v.Indices, idx)
		v.Values = append(v.Values, values[i])
	}
	return v, nil
}

// FromMap builds a Vector from an index->weight map.
func FromMap(dim int, weights map[int]float32) (Vector, error) {
	indices := make([]int32, 0, len(weights))
	for idx := range weights {
		if idx < 0 || idx >= dim || idx > math.MaxInt32 {
			return Vector{}, invalidArgument("index %d out of range for dim %d", idx, dim)
		}
		indices = append(indices, int32(idx))
	}
	sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })
	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = weights[int(idx)]
	}
	return NewSparse(dim, indices, values)
}

// NNZ returns the number of stored non-zero entries.
func (v Vector) NNZ() int { return len(v.Indices) }

// ToDense expands the vector into a dense slice of length Dim.
func (v Vector) ToDense() []float32 {
	out := make([]float32, v.Dim)
	for i, idx := range v.Indices {
		out[idx] = v.Values[i]
	}
	return out
}

// Dot computes the dot product by merging the two index lists.
func (v Vector) Dot(o Vector) float64 {
	var s float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			s += float64(v.Values[i]) * float64(o.Values[j])
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return s
}

// Norm returns the Euclidean norm.
func (v Vector) Norm() float64 {
	var s float64
	for _, w := range v.Values {
		s += float64(w) * float64(w)
	}
	return math.Sqrt(s)
}

// Cosine returns the cosine similarity of a and b. The score is 0 when either
// vector has zero norm.
func Cosine(a, b Vector) (float64, error) {
	if a.Dim != b.Dim {
		return 0, fmt.Errorf("similarity: %w: %d vs %d", ErrDimensionMismatch, a.Dim, b.Dim)
	}
	return cosine(a, a.Norm(), b, b.Norm()), nil
}

func cosine(a Vector, an float64, b Vector, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	s := a.Dot(b) / (an * bn)
	if math.IsNaN(s) {
		return 0
	}
	return s
}

const headerSize = 8

// MarshalBinary stores: dim(uint32), nnz(uint32), indices(uint32[nnz]),
// values(float32[nnz]), all little-endian.
func (v Vector) MarshalBinary() ([]byte, error) {
	if v.Dim < 0 || len(v.Indices) != len(v.Values) {
		return nil, invalidArgument("malformed vector (dim=%d, indices=%d, values=%d)", v.Dim, len(v.Indices), len(v.Values))
	}
	n := len(v.Indices)
	out := make([]byte, headerSize+8*n)
	binary.LittleEndian.PutUint32(out[0:4], uint32(v.Dim))
	binary.LittleEndian.PutUint32(out[4:8], uint32(n))
	off := headerSize
	for _, idx := range v.Indices {
		binary.LittleEndian.PutUint32(out[off:], uint32(idx))
		off += 4
	}
	for _, w := range v.Values {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(w))
		off += 4
	}
	return out, nil
}

// UnmarshalBinary restores a vector encoded by MarshalBinary.
func (v *Vector) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("similarity: invalid vector blob length %d", len(data))
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	n := int(binary.LittleEndian.Uint32(data[4:8]))
	if len(data) != headerSize+8*n {
		return fmt.Errorf("similarity: vector blob length %d does not match nnz %d", len(data), n)
	}
	indices := make([]int32, n)
	values := make([]float32, n)
	off := headerSize
	for i := 0; i < n; i++ {
		indices[i] = int32(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	for i := 0; i < n; i++ {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	decoded, err := NewSparse(dim, indices, values)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
