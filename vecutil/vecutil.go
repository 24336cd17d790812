package vecutil

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/simsearch/similarity"
)

// EmbedFunc converts free-form text into a feature vector.
//
// Implementations can call any vectorization service (TF-IDF pipeline, hosted
// embedding API, local model) as long as every call returns vectors of the
// same dimensionality. This package stays vectorizer-agnostic and only depends
// on the numeric vectors.
type EmbedFunc func(ctx context.Context, text string) (similarity.Vector, error)

// ParseVector decodes a query vector from text. Accepted forms:
//   - JSON float list: "[1, 0, 0.5]"
//   - sparse pairs:    "0:1, 2:0.5" (requires dim > 0)
//   - CSV float list:  "1,0,0.5"
//   - base64 of a similarity.Vector binary encoding
//
// When dim > 0 the decoded vector must have that dimensionality.
func ParseVector(dim int, raw string) (similarity.Vector, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return similarity.Vector{}, fmt.Errorf("vecutil: vector string is empty")
	}
	v, err := parseVector(dim, s)
	if err != nil {
		return similarity.Vector{}, err
	}
	if dim > 0 && v.Dim != dim {
		return similarity.Vector{}, fmt.Errorf("vecutil: %w: parsed dim %d, want %d", similarity.ErrDimensionMismatch, v.Dim, dim)
	}
	return v, nil
}

func parseVector(dim int, s string) (similarity.Vector, error) {
	if strings.HasPrefix(s, "[") {
		var floats []float32
		if err := json.Unmarshal([]byte(s), &floats); err != nil {
			return similarity.Vector{}, fmt.Errorf("vecutil: invalid JSON vector: %w", err)
		}
		return similarity.Dense(floats), nil
	}
	if strings.Contains(s, ":") {
		if dim <= 0 {
			return similarity.Vector{}, fmt.Errorf("vecutil: sparse vector requires a dimension")
		}
		weights := map[int]float32{}
		for _, p := range strings.Split(s, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			k, w, _ := strings.Cut(p, ":")
			idx, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				return similarity.Vector{}, fmt.Errorf("vecutil: invalid sparse index %q: %w", k, err)
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(w), 32)
			if err != nil {
				return similarity.Vector{}, fmt.Errorf("vecutil: invalid sparse weight %q: %w", w, err)
			}
			weights[idx] = float32(f)
		}
		return similarity.FromMap(dim, weights)
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		var v similarity.Vector
		if err := v.UnmarshalBinary(b); err == nil {
			return v, nil
		}
	}
	parts := strings.Split(s, ",")
	floats := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return similarity.Vector{}, fmt.Errorf("vecutil: invalid float %q: %w", p, err)
		}
		floats = append(floats, float32(f))
	}
	if len(floats) == 0 {
		return similarity.Vector{}, fmt.Errorf("vecutil: vector must be JSON/CSV floats, sparse idx:weight pairs or base64 blob")
	}
	return similarity.Dense(floats), nil
}
