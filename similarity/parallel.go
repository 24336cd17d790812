package similarity

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SearchParallel behaves like Search but scores the corpus in up to shards
// contiguous ranges concurrently. Ranking happens once on the merged scores,
// so the result is identical to Search for the same inputs.
func SearchParallel(ctx context.Context, corpus Corpus, query Vector, maxCount int, minSimilarity float64, shards int) ([]Match, error) {
	if len(corpus) == 0 {
		return nil, nil
	}
	if shards <= 1 || len(corpus) < 2*shards {
		return Search(corpus, query, maxCount, minSimilarity)
	}
	if err := validate(corpus, query, maxCount); err != nil {
		return nil, err
	}
	scored := make([]Match, len(corpus))
	queryNorm := query.Norm()
	size := (len(corpus) + shards - 1) / shards
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(corpus); start += size {
		end := min(start+size, len(corpus))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scoreRange(corpus[start:end], query, queryNorm, scored[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rank(scored, maxCount, minSimilarity), nil
}
