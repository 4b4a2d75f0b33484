package bkdgo

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// NearestBatch evaluates many origins against the same segments and
// returns one result list per origin, aligned index-for-index.
//
// Queries run concurrently up to WithBatchConcurrency (default
// GOMAXPROCS). Every query gets fresh root cursors from the segment
// trees, so no cursor state is shared; each individual query is still
// single-threaded. If any query fails, the batch returns the first
// error and no results; the other queries still run to completion.
func NearestBatch(ctx context.Context, segments []Segment, k int, origins [][]float32, optFns ...Option) ([][]Result, error) {
	o := applyOptions(optFns)

	results := make([][]Result, len(origins))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.batchConcurrency)
	for i, origin := range origins {
		i, origin := i, origin
		g.Go(func() error {
			r, err := Nearest(ctx, segments, k, origin, optFns...)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	err := g.Wait()
	o.logger.LogBatchSearch(ctx, k, len(origins), err)
	if err != nil {
		return nil, err
	}
	return results, nil
}
