package similarity

import "sort"

// Document is one corpus entry identified by an externally assigned id.
type Document struct {
	ID     int64
	Vector Vector
}

// Corpus is an ordered collection of documents sharing one dimensionality.
type Corpus []Document

// Match is a single ranked search hit.
type Match struct {
	ID    int64
	Score float64
}

// Search ranks corpus by cosine similarity to query and returns at most
// maxCount matches with score >= minSimilarity, ordered by descending score and
// ascending id on ties. An empty corpus yields an empty result.
func Search(corpus Corpus, query Vector, maxCount int, minSimilarity float64) ([]Match, error) {
	if len(corpus) == 0 {
		return nil, nil
	}
	if err := validate(corpus, query, maxCount); err != nil {
		return nil, err
	}
	scored := make([]Match, len(corpus))
	scoreRange(corpus, query, query.Norm(), scored)
	return rank(scored, maxCount, minSimilarity), nil
}

func validate(corpus Corpus, query Vector, maxCount int) error {
	if maxCount < 0 {
		return invalidArgument("maxCount must be non-negative, got %d", maxCount)
	}
	seen := make(map[int64]struct{}, len(corpus))
	for _, doc := range corpus {
		if doc.Vector.Dim != query.Dim {
			return &DimensionMismatchError{DocumentID: doc.ID, Expected: query.Dim, Actual: doc.Vector.Dim}
		}
		if _, ok := seen[doc.ID]; ok {
			return invalidArgument("duplicate document id %d", doc.ID)
		}
		seen[doc.ID] = struct{}{}
	}
	return nil
}

// scoreRange writes one match per document of corpus into out (same length).
func scoreRange(corpus Corpus, query Vector, queryNorm float64, out []Match) {
	for i, doc := range corpus {
		out[i] = Match{ID: doc.ID, Score: cosine(query, queryNorm, doc.Vector, doc.Vector.Norm())}
	}
}

// rank sorts scored in place and returns the thresholded, truncated prefix.
func rank(scored []Match, maxCount int, minSimilarity float64) []Match {
	sort.Slice(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].ID < scored[b].ID
	})
	if maxCount > len(scored) {
		maxCount = len(scored)
	}
	out := make([]Match, 0, maxCount)
	for _, m := range scored {
		if len(out) == maxCount || !(m.Score >= minSimilarity) {
			break
		}
		out = append(out, m)
	}
	return out
}
