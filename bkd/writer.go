package bkd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/hupe1980/bkdgo/encoding"
)

// On-disk layout:
//
//	header:  magic u32 | version u8 | compression u8 | reserved u16 |
//	         numDims u32 | numPoints u64
//	body:    leaf block frames and node records, children before parents
//	footer:  rootOff u64 | magic u32
//
// Leaf node record:     kind=0 | minPacked | maxPacked | numPoints u32 | blockOff u64
// Interior node record: kind=1 | minPacked | maxPacked | leftOff u64 | rightOff u64
//
// All integers are little-endian. Block frames are framed by
// compressBlock; the uncompressed payload is docIDs (int32 each)
// followed by the packed point rows.
const (
	fileMagic   = uint32(0x31444B42) // "BKD1"
	fileVersion = uint8(1)

	headerSize = 20
	footerSize = 12

	nodeKindLeaf     = uint8(0)
	nodeKindInterior = uint8(1)
)

// WriteOptions configures on-disk serialization.
type WriteOptions struct {
	// Compression applied to leaf blocks.
	Compression Compression
}

// WriteFile serializes tree to path so it can later be served by Open.
func WriteFile(path string, tree *MemoryTree, optFns ...func(o *WriteOptions)) error {
	opts := WriteOptions{Compression: CompressionLZ4}
	for _, fn := range optFns {
		fn(&opts)
	}

	if !opts.Compression.valid() {
		return fmt.Errorf("bkd: unknown compression type %d", opts.Compression)
	}
	if tree.root == nil {
		return fmt.Errorf("bkd: cannot write a tree with no points")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bkd: create index file: %w", err)
	}

	fw := &fileWriter{w: bufio.NewWriter(f)}

	fw.u32(fileMagic)
	fw.u8(fileVersion)
	fw.u8(uint8(opts.Compression))
	fw.u16(0)
	fw.u32(uint32(tree.numDims))
	fw.u64(uint64(tree.numPoints))

	rootOff := fw.writeNode(tree, tree.root, opts.Compression)

	fw.u64(uint64(rootOff))
	fw.u32(fileMagic)

	if fw.err == nil {
		fw.err = fw.w.Flush()
	}
	if fw.err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("bkd: write index file: %w", fw.err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("bkd: close index file: %w", err)
	}
	return nil
}

// fileWriter tracks the byte offset of everything written and carries
// the first error so call sites stay linear.
type fileWriter struct {
	w   *bufio.Writer
	off int64
	err error
}

func (fw *fileWriter) write(p []byte) {
	if fw.err != nil {
		return
	}
	n, err := fw.w.Write(p)
	fw.off += int64(n)
	fw.err = err
}

func (fw *fileWriter) u8(v uint8) { fw.write([]byte{v}) }

func (fw *fileWriter) u16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	fw.write(buf[:])
}

func (fw *fileWriter) u32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	fw.write(buf[:])
}

func (fw *fileWriter) u64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	fw.write(buf[:])
}

// writeNode emits n (children and leaf blocks first) and returns the
// offset of n's node record.
func (fw *fileWriter) writeNode(t *MemoryTree, n *memoryNode, compression Compression) int64 {
	if n.left == nil {
		blockOff := fw.off
		fw.writeLeafBlock(t, n, compression)

		nodeOff := fw.off
		fw.u8(nodeKindLeaf)
		fw.write(n.minPacked)
		fw.write(n.maxPacked)
		fw.u32(uint32(len(n.docIDs)))
		fw.u64(uint64(blockOff))
		return nodeOff
	}

	leftOff := fw.writeNode(t, n.left, compression)
	rightOff := fw.writeNode(t, n.right, compression)

	nodeOff := fw.off
	fw.u8(nodeKindInterior)
	fw.write(n.minPacked)
	fw.write(n.maxPacked)
	fw.u64(uint64(leftOff))
	fw.u64(uint64(rightOff))
	return nodeOff
}

func (fw *fileWriter) writeLeafBlock(t *MemoryTree, n *memoryNode, compression Compression) {
	if fw.err != nil {
		return
	}

	rowLen := t.numDims * encoding.BytesPerDim
	payload := make([]byte, 0, len(n.docIDs)*4+len(n.docIDs)*rowLen)
	var buf [4]byte
	for _, docID := range n.docIDs {
		binary.LittleEndian.PutUint32(buf[:], uint32(docID))
		payload = append(payload, buf[:]...)
	}
	payload = append(payload, n.packed...)

	frame, err := compressBlock(payload, compression)
	if err != nil {
		fw.err = err
		return
	}
	fw.write(frame)
}
