package world

import (
	"fmt"
	"math"
)

// CSRGraph is an immutable compressed-sparse-row view of the road network.
// Each segment contributes one directed edge per direction; weights are
// free-flow traversal times in ticks. A graph is built once and then only
// read, so the world can publish it with a pointer swap while older paths
// keep referencing the build they came from.
type CSRGraph struct {
	Generation uint64
	NodePos    []Vec2
	RowOffsets []uint32
	Cols       []uint32
	EdgeSeg    []SegmentID
	Weights    []float64
}

func (g *CSRGraph) NodeCount() int { return len(g.NodePos) }
func (g *CSRGraph) EdgeCount() int { return len(g.Cols) }

// Degree returns the out-edge count of a node.
func (g *CSRGraph) Degree(n NodeID) int {
	return int(g.RowOffsets[n+1] - g.RowOffsets[n])
}

// BuildGraph flattens the segment store into CSR form. Node ids are the
// store's creation-ordered ids, and edges are filled by walking segments in
// insertion order, so two stores with the same edit history produce
// byte-identical graphs.
func BuildGraph(s *SegmentStore) (*CSRGraph, error) {
	n := len(s.nodes)
	g := &CSRGraph{
		Generation: s.generation,
		NodePos:    make([]Vec2, n),
		RowOffsets: make([]uint32, n+1),
	}
	for i := range s.nodes {
		g.NodePos[i] = s.nodes[i].Pos
	}

	counts := make([]uint32, n)
	s.Each(func(seg *Segment) {
		if seg.A == seg.B {
			return
		}
		counts[seg.A]++
		counts[seg.B]++
	})
	total := uint32(0)
	for i := 0; i < n; i++ {
		g.RowOffsets[i] = total
		total += counts[i]
	}
	g.RowOffsets[n] = total
	g.Cols = make([]uint32, total)
	g.EdgeSeg = make([]SegmentID, total)
	g.Weights = make([]float64, total)

	next := make([]uint32, n)
	copy(next, g.RowOffsets[:n])
	s.Each(func(seg *Segment) {
		if seg.A == seg.B {
			return
		}
		w := freeFlowTicks(s, seg)
		for _, dir := range [2][2]NodeID{{seg.A, seg.B}, {seg.B, seg.A}} {
			at := next[dir[0]]
			g.Cols[at] = uint32(dir[1])
			g.EdgeSeg[at] = seg.ID
			g.Weights[at] = w
			next[dir[0]] = at + 1
		}
	})

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// freeFlowTicks is the uncongested traversal time of a segment for a
// unit-speed profile.
func freeFlowTicks(s *SegmentStore, seg *Segment) float64 {
	def, _ := s.cats.Roads.ClassByIndex(seg.Class)
	return seg.ArcLength / (s.grid.CellSize * def.SpeedCellsPerTick)
}

// Validate checks CSR structural invariants. A graph failing validation is
// never published.
func (g *CSRGraph) Validate() error {
	n := len(g.NodePos)
	if len(g.RowOffsets) != n+1 {
		return fmt.Errorf("%w: row offsets length %d for %d nodes", ErrGraphBuild, len(g.RowOffsets), n)
	}
	if g.RowOffsets[0] != 0 {
		return fmt.Errorf("%w: row offsets must start at zero", ErrGraphBuild)
	}
	for i := 0; i < n; i++ {
		if g.RowOffsets[i+1] < g.RowOffsets[i] {
			return fmt.Errorf("%w: row offsets not monotone at node %d", ErrGraphBuild, i)
		}
	}
	if int(g.RowOffsets[n]) != len(g.Cols) || len(g.Cols) != len(g.Weights) || len(g.Cols) != len(g.EdgeSeg) {
		return fmt.Errorf("%w: edge array lengths disagree", ErrGraphBuild)
	}
	for i, col := range g.Cols {
		if int(col) >= n {
			return fmt.Errorf("%w: edge %d targets node %d of %d", ErrGraphBuild, i, col, n)
		}
		w := g.Weights[i]
		if !(w > 0) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: edge %d has weight %v", ErrGraphBuild, i, w)
		}
	}
	return nil
}
