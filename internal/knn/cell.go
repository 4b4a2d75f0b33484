package knn

import "github.com/hupe1980/bkdgo/bkd"

// cell is one unexpanded subtree on the frontier: a cursor positioned
// at its root, the segment it belongs to, and the lower bound of any
// contained point's squared distance to the origin.
//
// The bound corners are owned copies. The cursor's own buffers move as
// it navigates, so an enqueued cell must not alias them.
type cell struct {
	tree            bkd.PointTree
	readerIndex     int
	minPacked       []byte
	maxPacked       []byte
	distanceSquared float64
}

func newCell(tree bkd.PointTree, readerIndex int, minPacked, maxPacked []byte, distanceSquared float64) *cell {
	c := &cell{
		tree:            tree,
		readerIndex:     readerIndex,
		minPacked:       make([]byte, len(minPacked)),
		maxPacked:       make([]byte, len(maxPacked)),
		distanceSquared: distanceSquared,
	}
	copy(c.minPacked, minPacked)
	copy(c.maxPacked, maxPacked)
	return c
}

// cellQueue is a min-heap of cells keyed by distanceSquared. Ties are
// broken arbitrarily by heap order.
type cellQueue struct {
	items []*cell
}

func (q *cellQueue) Len() int { return len(q.items) }

func (q *cellQueue) Push(c *cell) {
	q.items = append(q.items, c)
	i := len(q.items) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if q.items[i].distanceSquared >= q.items[parent].distanceSquared {
			break
		}
		q.items[i], q.items[parent] = q.items[parent], q.items[i]
		i = parent
	}
}

func (q *cellQueue) Pop() *cell {
	n := len(q.items)
	c := q.items[0]
	q.items[0] = q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]

	i := 0
	n--
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && q.items[right].distanceSquared < q.items[left].distanceSquared {
			child = right
		}
		if q.items[child].distanceSquared >= q.items[i].distanceSquared {
			break
		}
		q.items[i], q.items[child] = q.items[child], q.items[i]
		i = child
	}
	return c
}
