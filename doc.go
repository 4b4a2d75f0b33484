// Package bkdgo provides exact k-nearest-neighbor search over
// multi-dimensional float32 points indexed in block k-d trees.
//
// A query fans out over per-segment indexes, walks them with a single
// best-first frontier of tree cells pruned by a point-to-rectangle
// lower bound, and collects hits in a bounded queue whose worst entry
// drives the dynamic pruning radius. Results are exact under squared
// Euclidean distance, with deterministic doc-ID tie-breaking.
//
// # Quick Start
//
//	b, _ := bkd.NewMemoryTreeBuilder(2)
//	b.Add(0, []float32{0, 0})
//	b.Add(1, []float32{3, 4})
//	tree, _ := b.Build()
//
//	results, _ := bkdgo.Nearest(ctx, []bkdgo.Segment{{Tree: tree}}, 1, []float32{1, 1})
//	fmt.Println(results[0].DocID, results[0].Distance)
//
// Indexes can be served from memory or from an mmap-backed file
// written with bkd.WriteFile:
//
//	_ = bkd.WriteFile("points.bkd", tree)
//	ft, _ := bkd.Open("points.bkd")
//	defer ft.Close()
//
// Deleted documents are excluded by passing a roaring bitmap of live
// segment-local doc IDs as Segment.LiveDocs. Many origins can be
// evaluated concurrently against the same segments with NearestBatch;
// a single query is always strictly single-threaded.
package bkdgo
