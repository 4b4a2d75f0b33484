package knn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/hupe1980/bkdgo/bkd"
	"github.com/hupe1980/bkdgo/encoding"
)

func packBox(min, max []float32) (minPacked, maxPacked []byte) {
	return encoding.Pack(min), encoding.Pack(max)
}

func TestPointToRectangleDistanceSquared(t *testing.T) {
	minPacked, maxPacked := packBox([]float32{0, 0}, []float32{10, 10})

	tests := []struct {
		name   string
		origin []float32
		want   float64
	}{
		{"inside", []float32{5, 5}, 0},
		{"on corner", []float32{0, 0}, 0},
		{"on edge", []float32{10, 3}, 0},
		{"left of box", []float32{-3, 5}, 9},
		{"above and right", []float32{13, 14}, 9 + 16},
		{"below", []float32{4, -2}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pointToRectangleDistanceSquared(minPacked, maxPacked, tt.origin)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPointToRectangleDistanceIsLowerBound(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 200; trial++ {
		lo := []float32{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())}
		hi := make([]float32, 3)
		for i := range hi {
			hi[i] = lo[i] + float32(rng.Float64()*10)
		}
		origin := []float32{float32(rng.NormFloat64() * 10), float32(rng.NormFloat64() * 10), float32(rng.NormFloat64() * 10)}

		minPacked, maxPacked := packBox(lo, hi)
		bound := pointToRectangleDistanceSquared(minPacked, maxPacked, origin)
		if bound < 0 {
			t.Fatalf("negative bound %v", bound)
		}

		// Any point sampled inside the box must be at least bound away.
		for s := 0; s < 20; s++ {
			var dsq float64
			for i := range origin {
				p := float64(lo[i]) + rng.Float64()*(float64(hi[i])-float64(lo[i]))
				diff := p - float64(origin[i])
				dsq += diff * diff
			}
			if dsq < bound-1e-9 {
				t.Fatalf("bound %v exceeds interior point distance %v", bound, dsq)
			}
		}
	}
}

func buildCursor(t *testing.T, dims int, points [][]float32, leafSize int) bkd.PointTree {
	t.Helper()

	b, err := bkd.NewMemoryTreeBuilder(dims, func(o *bkd.MemoryTreeOptions) {
		o.MaxPointsInLeaf = leafSize
	})
	if err != nil {
		t.Fatal(err)
	}
	for doc, p := range points {
		if err := b.Add(doc, p); err != nil {
			t.Fatal(err)
		}
	}
	tree, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	cursor, err := tree.PointTree()
	if err != nil {
		t.Fatal(err)
	}
	return cursor
}

func TestNearestSingleSegment(t *testing.T) {
	cursor := buildCursor(t, 2, [][]float32{{0, 0}, {3, 4}, {1, 1}}, 1)

	hits, err := Nearest([]Segment{{Tree: cursor}}, 2, []float32{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].DocID != 0 || hits[0].DistanceSquared != 0 {
		t.Errorf("hit 0: %+v", hits[0])
	}
	if hits[1].DocID != 2 || hits[1].DistanceSquared != 2 {
		t.Errorf("hit 1: %+v", hits[1])
	}
}

func TestNearestMatchesBruteForce(t *testing.T) {
	for _, seed := range []int64{1, 2, 3} {
		rng := rand.New(rand.NewSource(seed))

		const n, dims, k = 2000, 4, 10
		points := make([][]float32, n)
		for i := range points {
			p := make([]float32, dims)
			for d := range p {
				p[d] = float32(rng.Float64() * 100)
			}
			points[i] = p
		}
		origin := make([]float32, dims)
		for d := range origin {
			origin[d] = float32(rng.Float64() * 100)
		}

		cursor := buildCursor(t, dims, points, 16)
		hits, err := Nearest([]Segment{{Tree: cursor}}, k, origin)
		if err != nil {
			t.Fatal(err)
		}

		want := bruteForce(points, origin, k)
		if len(hits) != len(want) {
			t.Fatalf("seed %d: got %d hits, want %d", seed, len(hits), len(want))
		}
		for i := range want {
			if hits[i] != want[i] {
				t.Fatalf("seed %d hit %d: got %+v, want %+v", seed, i, hits[i], want[i])
			}
		}
	}
}

func bruteForce(points [][]float32, origin []float32, k int) []Hit {
	all := make([]Hit, len(points))
	for doc, p := range points {
		var dsq float64
		for d := range origin {
			diff := float64(p[d]) - float64(origin[d])
			dsq += diff * diff
		}
		all[doc] = Hit{DocID: doc, DistanceSquared: dsq}
	}
	// insertion-sort into the first k slots would do, but n is small
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && hitLess(all[j], all[j-1]); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

func hitLess(a, b Hit) bool {
	if a.DistanceSquared != b.DistanceSquared {
		return a.DistanceSquared < b.DistanceSquared
	}
	return a.DocID < b.DocID
}

func TestNearestEmptyFrontier(t *testing.T) {
	hits, err := Nearest(nil, 5, []float32{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestValidateBounds(t *testing.T) {
	minPacked, maxPacked := packBox([]float32{0, 0}, []float32{1, 1})
	if err := validateBounds(minPacked, maxPacked, 2); err != nil {
		t.Fatal(err)
	}

	// Inverted in dimension 1.
	badMin, badMax := packBox([]float32{0, 2}, []float32{1, 1})
	err := validateBounds(badMin, badMax, 2)
	if !errors.Is(err, bkd.ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex, got %v", err)
	}

	if err := validateBounds(minPacked[:4], maxPacked, 2); !errors.Is(err, bkd.ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex for short bounds, got %v", err)
	}
}

func TestVisitorShortCircuitKeepsEqualDistance(t *testing.T) {
	// Two equidistant points: the short-circuit must not drop the
	// second one before the doc ID tie-break can run.
	hits := newHitQueue(1)
	v := newNearestVisitor(hits, []float32{0, 0})

	if err := v.Visit(9, encoding.Pack([]float32{3, 4})); err != nil {
		t.Fatal(err)
	}
	if err := v.Visit(2, encoding.Pack([]float32{0, 5})); err != nil {
		t.Fatal(err)
	}

	got := hits.DrainAscending()
	if len(got) != 1 || got[0].DocID != 2 || got[0].DistanceSquared != 25 {
		t.Fatalf("expected doc 2 at 25, got %+v", got)
	}
}

func TestVisitorBottomStartsUnbounded(t *testing.T) {
	v := newNearestVisitor(newHitQueue(3), []float32{0})
	if !math.IsInf(v.bottomDistanceSquared, 1) {
		t.Fatalf("bottom distance should start at +Inf, got %v", v.bottomDistanceSquared)
	}
	if v.bottomDocID != math.MaxInt {
		t.Fatalf("bottom doc should start at MaxInt, got %d", v.bottomDocID)
	}
}
