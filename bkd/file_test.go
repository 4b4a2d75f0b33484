package bkd

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeAndOpen(t *testing.T, tree *MemoryTree, compression Compression) *FileTree {
	t.Helper()

	path := filepath.Join(t.TempDir(), "points.bkd")
	if err := WriteFile(path, tree, func(o *WriteOptions) {
		o.Compression = compression
	}); err != nil {
		t.Fatal(err)
	}

	ft, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ft.Close() })
	return ft
}

func randomPoints(seed int64, n, dims int) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	points := make([][]float32, n)
	for i := range points {
		p := make([]float32, dims)
		for d := range p {
			p[d] = float32(rng.NormFloat64() * 50)
		}
		points[i] = p
	}
	return points
}

func TestFileTreeRoundTrip(t *testing.T) {
	points := randomPoints(11, 300, 3)
	tree := buildTree(t, 3, 16, points)

	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		ft := writeAndOpen(t, tree, compression)

		if ft.NumDimensions() != 3 {
			t.Fatalf("dims: got %d", ft.NumDimensions())
		}
		if ft.NumPoints() != len(points) {
			t.Fatalf("points: got %d, want %d", ft.NumPoints(), len(points))
		}
		if ft.Compression() != compression {
			t.Fatalf("compression: got %d, want %d", ft.Compression(), compression)
		}

		cursor, err := ft.PointTree()
		if err != nil {
			t.Fatal(err)
		}

		var v collectingVisitor
		walkAll(t, cursor, &v)
		if len(v.docs) != len(points) {
			t.Fatalf("compression %d: visited %d points, want %d", compression, len(v.docs), len(points))
		}
		sort.Ints(v.docs)
		for i, doc := range v.docs {
			if doc != i {
				t.Fatalf("docs not a permutation: %v", v.docs)
			}
		}
	}
}

func TestFileTreeMatchesMemoryTree(t *testing.T) {
	points := randomPoints(23, 500, 2)
	tree := buildTree(t, 2, 8, points)
	ft := writeAndOpen(t, tree, CompressionLZ4)

	memCursor, err := tree.PointTree()
	if err != nil {
		t.Fatal(err)
	}
	fileCursor, err := ft.PointTree()
	if err != nil {
		t.Fatal(err)
	}

	var memV, fileV collectingVisitor
	walkAll(t, memCursor, &memV)
	walkAll(t, fileCursor, &fileV)

	if len(memV.docs) != len(fileV.docs) {
		t.Fatalf("visit counts differ: %d vs %d", len(memV.docs), len(fileV.docs))
	}

	memSeen := make(map[int]string, len(memV.docs))
	for i, doc := range memV.docs {
		memSeen[doc] = string(memV.points[i])
	}
	for i, doc := range fileV.docs {
		if memSeen[doc] != string(fileV.points[i]) {
			t.Fatalf("doc %d: packed value differs between memory and file tree", doc)
		}
	}
}

func TestWriteFileEmptyTree(t *testing.T) {
	tree := buildTree(t, 2, 4, nil)
	err := WriteFile(filepath.Join(t.TempDir(), "empty.bkd"), tree)
	if err == nil {
		t.Fatal("expected error writing empty tree")
	}
}

func TestOpenCorruptFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad magic", func(t *testing.T) {
		path := filepath.Join(dir, "junk.bkd")
		if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Open(path)
		if !errors.Is(err, ErrCorruptIndex) {
			t.Fatalf("expected ErrCorruptIndex, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(dir, "short.bkd")
		if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Open(path)
		if !errors.Is(err, ErrCorruptIndex) {
			t.Fatalf("expected ErrCorruptIndex, got %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "does-not-exist.bkd"))
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestFileCursorCloneIsIndependent(t *testing.T) {
	points := randomPoints(5, 64, 2)
	tree := buildTree(t, 2, 4, points)
	ft := writeAndOpen(t, tree, CompressionZstd)

	cursor, err := ft.PointTree()
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := cursor.MoveToChild(); !ok {
		t.Fatal("root should be interior")
	}

	clone := cursor.Clone()
	if ok, _ := cursor.MoveToSibling(); !ok {
		t.Fatal("first child should have a sibling")
	}

	var leftV, rightV collectingVisitor
	walkAll(t, clone, &leftV)
	walkAll(t, cursor, &rightV)

	if len(leftV.docs)+len(rightV.docs) != len(points) {
		t.Fatalf("subtree visits %d + %d != %d", len(leftV.docs), len(rightV.docs), len(points))
	}
}
