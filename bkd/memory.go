package bkd

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/hupe1980/bkdgo/encoding"
)

// DefaultMaxPointsInLeaf is the default leaf block size.
const DefaultMaxPointsInLeaf = 512

// MemoryTreeOptions configures the in-memory tree bulk loader.
type MemoryTreeOptions struct {
	// MaxPointsInLeaf caps the number of points stored per leaf block.
	MaxPointsInLeaf int
}

// DefaultMemoryTreeOptions are the options used when none are given.
var DefaultMemoryTreeOptions = MemoryTreeOptions{
	MaxPointsInLeaf: DefaultMaxPointsInLeaf,
}

// MemoryTreeBuilder bulk-loads points into an immutable MemoryTree.
// Add all points first, then call Build once.
type MemoryTreeBuilder struct {
	numDims int
	opts    MemoryTreeOptions
	docIDs  []int32
	packed  []byte // numDims*encoding.BytesPerDim bytes per point
}

// NewMemoryTreeBuilder creates a builder for points of the given
// dimensionality.
func NewMemoryTreeBuilder(numDims int, optFns ...func(o *MemoryTreeOptions)) (*MemoryTreeBuilder, error) {
	if numDims < 1 {
		return nil, fmt.Errorf("bkd: numDims must be at least 1; got %d", numDims)
	}

	opts := DefaultMemoryTreeOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxPointsInLeaf < 1 {
		return nil, fmt.Errorf("bkd: MaxPointsInLeaf must be at least 1; got %d", opts.MaxPointsInLeaf)
	}

	return &MemoryTreeBuilder{
		numDims: numDims,
		opts:    opts,
	}, nil
}

// Add appends one point. docID is the segment-local document number.
func (b *MemoryTreeBuilder) Add(docID int, values []float32) error {
	if docID < 0 {
		return fmt.Errorf("bkd: docID must be non-negative; got %d", docID)
	}
	if len(values) != b.numDims {
		return fmt.Errorf("bkd: point has %d dimensions, index has %d", len(values), b.numDims)
	}

	b.docIDs = append(b.docIDs, int32(docID))
	b.packed = append(b.packed, encoding.Pack(values)...)

	return nil
}

// Build constructs the tree. The builder must not be reused afterwards.
func (b *MemoryTreeBuilder) Build() (*MemoryTree, error) {
	t := &MemoryTree{
		numDims:   b.numDims,
		numPoints: len(b.docIDs),
	}
	if t.numPoints == 0 {
		return t, nil
	}

	order := make([]int, len(b.docIDs))
	for i := range order {
		order[i] = i
	}

	t.root = b.buildNode(order)

	return t, nil
}

// buildNode recursively partitions order (indexes into the builder's
// point arrays) by median split on the widest dimension.
func (b *MemoryTreeBuilder) buildNode(order []int) *memoryNode {
	rowLen := b.numDims * encoding.BytesPerDim

	n := &memoryNode{
		minPacked: make([]byte, rowLen),
		maxPacked: make([]byte, rowLen),
	}
	copy(n.minPacked, b.row(order[0]))
	copy(n.maxPacked, b.row(order[0]))
	for _, p := range order[1:] {
		row := b.row(p)
		for d := 0; d < b.numDims; d++ {
			off := d * encoding.BytesPerDim
			dim := row[off : off+encoding.BytesPerDim]
			if bytes.Compare(dim, n.minPacked[off:off+encoding.BytesPerDim]) < 0 {
				copy(n.minPacked[off:], dim)
			}
			if bytes.Compare(dim, n.maxPacked[off:off+encoding.BytesPerDim]) > 0 {
				copy(n.maxPacked[off:], dim)
			}
		}
	}

	if len(order) <= b.opts.MaxPointsInLeaf {
		n.docIDs = make([]int32, len(order))
		n.packed = make([]byte, len(order)*rowLen)
		for i, p := range order {
			n.docIDs[i] = b.docIDs[p]
			copy(n.packed[i*rowLen:], b.row(p))
		}
		return n
	}

	splitDim := b.widestDimension(n.minPacked, n.maxPacked)
	splitOff := splitDim * encoding.BytesPerDim

	sort.SliceStable(order, func(i, j int) bool {
		a := b.row(order[i])[splitOff : splitOff+encoding.BytesPerDim]
		c := b.row(order[j])[splitOff : splitOff+encoding.BytesPerDim]
		return bytes.Compare(a, c) < 0
	})

	mid := (len(order) + 1) / 2
	n.left = b.buildNode(order[:mid])
	n.right = b.buildNode(order[mid:])

	return n
}

func (b *MemoryTreeBuilder) row(p int) []byte {
	rowLen := b.numDims * encoding.BytesPerDim
	return b.packed[p*rowLen : (p+1)*rowLen]
}

// widestDimension picks the dimension with the largest decoded extent.
func (b *MemoryTreeBuilder) widestDimension(minPacked, maxPacked []byte) int {
	splitDim := 0
	widest := -1.0
	for d := 0; d < b.numDims; d++ {
		off := d * encoding.BytesPerDim
		width := float64(encoding.DecodeDimension(maxPacked, off)) - float64(encoding.DecodeDimension(minPacked, off))
		if width > widest {
			widest = width
			splitDim = d
		}
	}
	return splitDim
}

type memoryNode struct {
	minPacked []byte
	maxPacked []byte

	// interior
	left  *memoryNode
	right *memoryNode

	// leaf
	docIDs []int32
	packed []byte
}

// MemoryTree is an immutable, bulk-loaded block k-d tree held in memory.
type MemoryTree struct {
	numDims   int
	numPoints int
	root      *memoryNode
}

var _ Tree = (*MemoryTree)(nil)

// NumDimensions returns the per-point dimension count.
func (t *MemoryTree) NumDimensions() int { return t.numDims }

// NumPoints returns the number of indexed points.
func (t *MemoryTree) NumPoints() int { return t.numPoints }

// PointTree returns a fresh cursor rooted at the top of the tree.
func (t *MemoryTree) PointTree() (PointTree, error) {
	if t.root == nil {
		return nil, fmt.Errorf("bkd: tree holds no points")
	}
	return &memoryCursor{numDims: t.numDims, node: t.root}, nil
}

type memoryCursor struct {
	numDims int
	node    *memoryNode
	stack   []*memoryNode // ancestors of node, root first
}

var _ PointTree = (*memoryCursor)(nil)

func (c *memoryCursor) MinPackedValue() []byte { return c.node.minPacked }
func (c *memoryCursor) MaxPackedValue() []byte { return c.node.maxPacked }
func (c *memoryCursor) NumDimensions() int     { return c.numDims }

func (c *memoryCursor) MoveToChild() (bool, error) {
	if c.node.left == nil {
		return false, nil
	}
	c.stack = append(c.stack, c.node)
	c.node = c.node.left
	return true, nil
}

func (c *memoryCursor) MoveToSibling() (bool, error) {
	if len(c.stack) == 0 {
		return false, nil
	}
	parent := c.stack[len(c.stack)-1]
	if c.node != parent.left {
		return false, nil
	}
	c.node = parent.right
	return true, nil
}

func (c *memoryCursor) Clone() PointTree {
	clone := &memoryCursor{
		numDims: c.numDims,
		node:    c.node,
		stack:   make([]*memoryNode, len(c.stack)),
	}
	copy(clone.stack, c.stack)
	return clone
}

func (c *memoryCursor) VisitLeafValues(visitor IntersectVisitor) error {
	if c.node.left != nil {
		return fmt.Errorf("%w: VisitLeafValues called on interior node", ErrCorruptIndex)
	}
	if len(c.node.docIDs) == 0 {
		return fmt.Errorf("%w: leaf holds no points", ErrCorruptIndex)
	}
	if visitor.Compare(c.node.minPacked, c.node.maxPacked) == CellOutsideQuery {
		return nil
	}

	rowLen := c.numDims * encoding.BytesPerDim
	for i, docID := range c.node.docIDs {
		if err := visitor.Visit(int(docID), c.node.packed[i*rowLen:(i+1)*rowLen]); err != nil {
			return err
		}
	}
	return nil
}
