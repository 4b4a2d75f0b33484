package knn

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bkdgo/bkd"
	"github.com/hupe1980/bkdgo/encoding"
)

// nearestVisitor consumes leaf points, filters deleted docs, and feeds
// surviving candidates into the hit queue. It owns the dynamic pruning
// radius: once the queue is full, bottomDistanceSquared/bottomDocID
// mirror the queue's worst hit and bound everything still admissible.
type nearestVisitor struct {
	hits    *hitQueue
	origin  []float32
	numDims int

	// per-segment state, set by the driver before each leaf visit
	curDocBase  int
	curLiveDocs *roaring.Bitmap

	bottomDistanceSquared float64
	bottomDocID           int
}

var _ bkd.IntersectVisitor = (*nearestVisitor)(nil)

func newNearestVisitor(hits *hitQueue, origin []float32) *nearestVisitor {
	return &nearestVisitor{
		hits:                  hits,
		origin:                origin,
		numDims:               len(origin),
		bottomDistanceSquared: math.Inf(1),
		bottomDocID:           math.MaxInt,
	}
}

// Visit evaluates one point of a leaf cell.
func (v *nearestVisitor) Visit(docID int, packedValue []byte) error {
	if v.curLiveDocs != nil && !v.curLiveDocs.Contains(uint32(docID)) {
		return nil
	}

	distanceSquared := 0.0
	for d, offset := 0, 0; d < v.numDims; d, offset = d+1, offset+encoding.BytesPerDim {
		diff := float64(encoding.DecodeDimension(packedValue, offset)) - float64(v.origin[d])
		distanceSquared += diff * diff
		// Strictly worse than the current worst hit: abandon early.
		// Equal is kept so the doc ID tie-break below still applies.
		if distanceSquared > v.bottomDistanceSquared {
			return nil
		}
	}

	fullDocID := v.curDocBase + docID

	if v.hits.Full() && distanceSquared == v.bottomDistanceSquared && fullDocID > v.bottomDocID {
		return nil
	}

	v.hits.Offer(fullDocID, distanceSquared)
	if v.hits.Full() {
		bottom := v.hits.Top()
		v.bottomDistanceSquared = bottom.DistanceSquared
		v.bottomDocID = bottom.DocID
	}
	return nil
}

// Compare prunes cells whose box cannot beat the current worst hit.
// It never reports CellInsideQuery: contained points must still be
// examined for their individual distances.
func (v *nearestVisitor) Compare(minPacked, maxPacked []byte) bkd.Relation {
	if v.hits.Full() &&
		pointToRectangleDistanceSquared(minPacked, maxPacked, v.origin) > v.bottomDistanceSquared {
		return bkd.CellOutsideQuery
	}
	return bkd.CellCrossesQuery
}
