package bkd

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/bkdgo/encoding"
	"github.com/hupe1980/bkdgo/internal/mmap"
)

// FileTree serves a tree written by WriteFile from a memory-mapped
// file. Leaf blocks are decompressed on visit; node records are read
// directly out of the mapping.
type FileTree struct {
	f           *mmap.File
	data        []byte
	numDims     int
	numPoints   int
	compression Compression
	rootOff     int64
}

var _ Tree = (*FileTree)(nil)

// Open maps the index file at path.
func Open(path string) (*FileTree, error) {
	f, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bkd: open index file: %w", err)
	}

	t, err := newFileTree(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func newFileTree(f *mmap.File) (*FileTree, error) {
	data := f.Data
	if len(data) < headerSize+footerSize {
		return nil, fmt.Errorf("%w: file too small", ErrCorruptIndex)
	}

	if binary.LittleEndian.Uint32(data[0:]) != fileMagic {
		return nil, fmt.Errorf("%w: bad header magic", ErrCorruptIndex)
	}
	if binary.LittleEndian.Uint32(data[len(data)-4:]) != fileMagic {
		return nil, fmt.Errorf("%w: bad footer magic", ErrCorruptIndex)
	}
	if v := data[4]; v != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}

	compression := Compression(data[5])
	if !compression.valid() {
		return nil, fmt.Errorf("%w: unknown compression type %d", ErrCorruptIndex, compression)
	}

	numDims := int(binary.LittleEndian.Uint32(data[8:]))
	if numDims < 1 {
		return nil, fmt.Errorf("%w: numDims %d", ErrCorruptIndex, numDims)
	}
	numPoints := int(binary.LittleEndian.Uint64(data[12:]))

	rootOff := int64(binary.LittleEndian.Uint64(data[len(data)-footerSize:]))
	if rootOff < headerSize || rootOff >= int64(len(data)-footerSize) {
		return nil, fmt.Errorf("%w: root offset %d out of range", ErrCorruptIndex, rootOff)
	}

	return &FileTree{
		f:           f,
		data:        data,
		numDims:     numDims,
		numPoints:   numPoints,
		compression: compression,
		rootOff:     rootOff,
	}, nil
}

// Close unmaps the underlying file. Cursors must not be used afterwards.
func (t *FileTree) Close() error { return t.f.Close() }

// NumDimensions returns the per-point dimension count.
func (t *FileTree) NumDimensions() int { return t.numDims }

// NumPoints returns the number of indexed points.
func (t *FileTree) NumPoints() int { return t.numPoints }

// Compression returns the leaf block compression of the file.
func (t *FileTree) Compression() Compression { return t.compression }

// PointTree returns a fresh cursor rooted at the top of the tree.
func (t *FileTree) PointTree() (PointTree, error) {
	root, err := t.parseNode(t.rootOff)
	if err != nil {
		return nil, err
	}
	return &fileCursor{t: t, node: root}, nil
}

// fileNode is a decoded view of one node record. min and max alias the
// mapping and stay valid until Close.
type fileNode struct {
	off  int64
	leaf bool
	min  []byte
	max  []byte

	// leaf
	count    int
	blockOff int64

	// interior
	leftOff  int64
	rightOff int64
}

func (t *FileTree) parseNode(off int64) (fileNode, error) {
	rowLen := t.numDims * encoding.BytesPerDim
	bodyEnd := int64(len(t.data) - footerSize)

	// kind + bounds + the smaller of the two tails (u32+u64)
	if off < headerSize || off+1+int64(2*rowLen)+12 > bodyEnd {
		return fileNode{}, fmt.Errorf("%w: node record at %d out of range", ErrCorruptIndex, off)
	}

	n := fileNode{off: off}
	kind := t.data[off]
	p := off + 1
	n.min = t.data[p : p+int64(rowLen)]
	p += int64(rowLen)
	n.max = t.data[p : p+int64(rowLen)]
	p += int64(rowLen)

	for d := 0; d < t.numDims; d++ {
		o := d * encoding.BytesPerDim
		if bytes.Compare(n.min[o:o+encoding.BytesPerDim], n.max[o:o+encoding.BytesPerDim]) > 0 {
			return fileNode{}, fmt.Errorf("%w: node at %d has min > max in dimension %d", ErrCorruptIndex, off, d)
		}
	}

	switch kind {
	case nodeKindLeaf:
		n.leaf = true
		n.count = int(binary.LittleEndian.Uint32(t.data[p:]))
		n.blockOff = int64(binary.LittleEndian.Uint64(t.data[p+4:]))
		if n.count < 1 {
			return fileNode{}, fmt.Errorf("%w: leaf at %d holds no points", ErrCorruptIndex, off)
		}
		if n.blockOff < headerSize || n.blockOff >= bodyEnd {
			return fileNode{}, fmt.Errorf("%w: leaf block offset %d out of range", ErrCorruptIndex, n.blockOff)
		}
	case nodeKindInterior:
		if off+1+int64(2*rowLen)+16 > bodyEnd {
			return fileNode{}, fmt.Errorf("%w: node record at %d out of range", ErrCorruptIndex, off)
		}
		n.leftOff = int64(binary.LittleEndian.Uint64(t.data[p:]))
		n.rightOff = int64(binary.LittleEndian.Uint64(t.data[p+8:]))
	default:
		return fileNode{}, fmt.Errorf("%w: unknown node kind %d at %d", ErrCorruptIndex, kind, off)
	}

	return n, nil
}

type fileCursor struct {
	t     *FileTree
	node  fileNode
	stack []fileNode // ancestors of node, root first
}

var _ PointTree = (*fileCursor)(nil)

func (c *fileCursor) MinPackedValue() []byte { return c.node.min }
func (c *fileCursor) MaxPackedValue() []byte { return c.node.max }
func (c *fileCursor) NumDimensions() int     { return c.t.numDims }

func (c *fileCursor) MoveToChild() (bool, error) {
	if c.node.leaf {
		return false, nil
	}
	child, err := c.t.parseNode(c.node.leftOff)
	if err != nil {
		return false, err
	}
	c.stack = append(c.stack, c.node)
	c.node = child
	return true, nil
}

func (c *fileCursor) MoveToSibling() (bool, error) {
	if len(c.stack) == 0 {
		return false, nil
	}
	parent := c.stack[len(c.stack)-1]
	if c.node.off != parent.leftOff {
		return false, nil
	}
	sibling, err := c.t.parseNode(parent.rightOff)
	if err != nil {
		return false, err
	}
	c.node = sibling
	return true, nil
}

func (c *fileCursor) Clone() PointTree {
	clone := &fileCursor{
		t:     c.t,
		node:  c.node,
		stack: make([]fileNode, len(c.stack)),
	}
	copy(clone.stack, c.stack)
	return clone
}

func (c *fileCursor) VisitLeafValues(visitor IntersectVisitor) error {
	if !c.node.leaf {
		return fmt.Errorf("%w: VisitLeafValues called on interior node", ErrCorruptIndex)
	}
	if visitor.Compare(c.node.min, c.node.max) == CellOutsideQuery {
		return nil
	}

	payload, err := decompressBlock(c.t.data[c.node.blockOff:], c.t.compression)
	if err != nil {
		return err
	}

	rowLen := c.t.numDims * encoding.BytesPerDim
	want := c.node.count * (4 + rowLen)
	if len(payload) != want {
		return fmt.Errorf("%w: leaf block has %d bytes, want %d", ErrCorruptIndex, len(payload), want)
	}

	rows := payload[c.node.count*4:]
	for i := 0; i < c.node.count; i++ {
		docID := int(int32(binary.LittleEndian.Uint32(payload[i*4:])))
		if err := visitor.Visit(docID, rows[i*rowLen:(i+1)*rowLen]); err != nil {
			return err
		}
	}
	return nil
}
