package bkdgo

import (
	"context"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bkdgo/bkd"
	"github.com/hupe1980/bkdgo/internal/knn"
)

// Segment is one per-segment point index participating in a query.
type Segment struct {
	// Tree is the segment's point index. Segments with a nil Tree or
	// zero points are skipped.
	Tree bkd.Tree

	// DocBase offsets segment-local doc IDs into the collection-wide
	// doc ID space. Must be non-negative.
	DocBase int

	// LiveDocs holds the live segment-local doc IDs. Docs absent from
	// the bitmap are deleted and never returned. nil means all live.
	LiveDocs *roaring.Bitmap
}

// Result is one returned neighbor.
type Result struct {
	// DocID is the collection-wide document ID (DocBase + local ID).
	DocID int

	// Distance is the Euclidean distance from the origin.
	Distance float32

	// DistanceSquared is the raw squared distance the search computed.
	DistanceSquared float64
}

// Nearest returns the k documents whose indexed point is closest to
// origin under Euclidean distance, across all segments, sorted
// ascending by (distance, docID). Fewer than k results are returned
// when fewer than k live points exist.
//
// Equidistant hits are broken deterministically by the smaller doc ID,
// independent of segmentation and visit order.
func Nearest(ctx context.Context, segments []Segment, k int, origin []float32, optFns ...Option) ([]Result, error) {
	o := applyOptions(optFns)

	hits, err := nearest(segments, k, origin)
	o.logger.LogSearch(ctx, k, len(hits), err)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			DocID:           h.DocID,
			Distance:        float32(math.Sqrt(h.DistanceSquared)),
			DistanceSquared: h.DistanceSquared,
		}
	}
	return results, nil
}

func nearest(segments []Segment, k int, origin []float32) ([]knn.Hit, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if len(origin) == 0 {
		return nil, ErrMissingOrigin
	}
	for i, c := range origin {
		if math.IsNaN(float64(c)) {
			return nil, &ErrInvalidOrigin{Dim: i}
		}
	}

	segs := make([]knn.Segment, 0, len(segments))
	for _, s := range segments {
		if s.Tree == nil || s.Tree.NumPoints() == 0 {
			continue
		}
		if dims := s.Tree.NumDimensions(); dims != len(origin) {
			return nil, &ErrDimensionMismatch{Expected: dims, Actual: len(origin)}
		}
		if s.DocBase < 0 {
			return nil, ErrInvalidDocBase
		}

		cursor, err := s.Tree.PointTree()
		if err != nil {
			return nil, err
		}
		segs = append(segs, knn.Segment{
			Tree:     cursor,
			DocBase:  s.DocBase,
			LiveDocs: s.LiveDocs,
		})
	}

	return knn.Nearest(segs, k, origin)
}
