package knn

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bkdgo/bkd"
	"github.com/hupe1980/bkdgo/encoding"
)

// Segment is one per-segment index participating in a query. Tree must
// be a rooted cursor; DocBase offsets segment-local doc IDs into the
// collection-wide space. LiveDocs marks live docs; nil means all live.
type Segment struct {
	Tree     bkd.PointTree
	DocBase  int
	LiveDocs *roaring.Bitmap
}

// Nearest returns the topN hits closest to origin across all segments,
// in ascending (distanceSquared, docID) order. Callers validate
// arguments; this core assumes topN >= 1 and per-segment dimensions
// matching len(origin).
//
// The traversal is best-first over a single frontier that cross-cuts
// segments: the globally nearest unexplored cell is always expanded
// next, which tightens the pruning radius as fast as possible.
func Nearest(segments []Segment, topN int, origin []float32) ([]Hit, error) {
	hits := newHitQueue(topN)
	frontier := &cellQueue{}
	visitor := newNearestVisitor(hits, origin)

	for i, seg := range segments {
		minPacked := seg.Tree.MinPackedValue()
		maxPacked := seg.Tree.MaxPackedValue()
		if err := validateBounds(minPacked, maxPacked, len(origin)); err != nil {
			return nil, err
		}
		frontier.Push(newCell(seg.Tree, i, minPacked, maxPacked,
			pointToRectangleDistanceSquared(minPacked, maxPacked, origin)))
	}

	for frontier.Len() > 0 {
		c := frontier.Pop()

		// No remaining cell can hold a strictly better point.
		if c.distanceSquared > visitor.bottomDistanceSquared {
			break
		}

		hasChild, err := c.tree.MoveToChild()
		if err != nil {
			return nil, err
		}

		if !hasChild {
			visitor.curDocBase = segments[c.readerIndex].DocBase
			visitor.curLiveDocs = segments[c.readerIndex].LiveDocs
			if err := c.tree.VisitLeafValues(visitor); err != nil {
				return nil, err
			}
			continue
		}

		// The cursor now sits on the first child. Clone it for the left
		// subtree: MoveToSibling repositions the original irrevocably.
		left := c.tree.Clone()
		leftMin := left.MinPackedValue()
		leftMax := left.MaxPackedValue()
		if err := validateBounds(leftMin, leftMax, len(origin)); err != nil {
			return nil, err
		}
		if d := pointToRectangleDistanceSquared(leftMin, leftMax, origin); d <= visitor.bottomDistanceSquared {
			frontier.Push(newCell(left, c.readerIndex, leftMin, leftMax, d))
		}

		hasSibling, err := c.tree.MoveToSibling()
		if err != nil {
			return nil, err
		}
		if hasSibling {
			rightMin := c.tree.MinPackedValue()
			rightMax := c.tree.MaxPackedValue()
			if err := validateBounds(rightMin, rightMax, len(origin)); err != nil {
				return nil, err
			}
			if d := pointToRectangleDistanceSquared(rightMin, rightMax, origin); d <= visitor.bottomDistanceSquared {
				frontier.Push(newCell(c.tree, c.readerIndex, rightMin, rightMax, d))
			}
		}
	}

	return hits.DrainAscending(), nil
}

// pointToRectangleDistanceSquared returns the squared Euclidean
// distance from origin to the closest point of the closed axis-aligned
// box [minPacked, maxPacked]. Zero when origin lies inside the box.
// All arithmetic is in float64; origin coordinates are promoted.
func pointToRectangleDistanceSquared(minPacked, maxPacked []byte, origin []float32) float64 {
	sum := 0.0
	for i, offset := 0, 0; i < len(origin); i, offset = i+1, offset+encoding.BytesPerDim {
		v := float64(origin[i])
		if min := float64(encoding.DecodeDimension(minPacked, offset)); v < min {
			diff := min - v
			sum += diff * diff
			continue
		}
		if max := float64(encoding.DecodeDimension(maxPacked, offset)); v > max {
			diff := max - v
			sum += diff * diff
		}
	}
	return sum
}

// validateBounds rejects boxes whose packed corners are inverted or of
// the wrong width. Such a box means the index itself is broken; failing
// here beats silently returning wrong neighbors.
func validateBounds(minPacked, maxPacked []byte, numDims int) error {
	rowLen := numDims * encoding.BytesPerDim
	if len(minPacked) != rowLen || len(maxPacked) != rowLen {
		return fmt.Errorf("%w: bounds have %d/%d bytes, want %d", bkd.ErrCorruptIndex, len(minPacked), len(maxPacked), rowLen)
	}
	for d := 0; d < numDims; d++ {
		off := d * encoding.BytesPerDim
		if bytes.Compare(minPacked[off:off+encoding.BytesPerDim], maxPacked[off:off+encoding.BytesPerDim]) > 0 {
			return fmt.Errorf("%w: cell has min > max in dimension %d", bkd.ErrCorruptIndex, d)
		}
	}
	return nil
}
