package world

import (
	"fmt"
	"math"

	"cityflow.sim/internal/sim/catalogs"
	"cityflow.sim/internal/sim/tuning"
)

type SegmentID uint32

type NodeID uint32

// Node is an intersection where one or more segment endpoints snapped
// together. Nodes are never removed; a node whose segment list drains
// simply stops producing edges.
type Node struct {
	Pos  Vec2
	Segs []SegmentID
}

type Segment struct {
	ID        SegmentID
	Class     uint8
	Curve     Curve
	ArcLength float64
	A         NodeID
	B         NodeID

	// Line is the ordered centerline from A to B; Cells is the widened
	// footprint, sorted row-major. Both are derived from Curve and cached.
	Line  []CellPos
	Cells []CellPos
}

// SegmentStore owns road segments, their intersection nodes, and the
// rasterized grid. Every mutation bumps Generation so downstream caches
// (routing graph, cached paths) can detect staleness.
type SegmentStore struct {
	grid *CellGrid
	cats *catalogs.Catalogs
	tun  *tuning.Tuning

	segments map[SegmentID]*Segment
	order    []SegmentID
	nodes    []Node

	nextID     SegmentID
	generation uint64
}

func NewSegmentStore(grid *CellGrid, cats *catalogs.Catalogs, tun *tuning.Tuning) *SegmentStore {
	return &SegmentStore{
		grid:     grid,
		cats:     cats,
		tun:      tun,
		segments: make(map[SegmentID]*Segment),
		nextID:   1,
	}
}

func (s *SegmentStore) Generation() uint64 { return s.generation }
func (s *SegmentStore) Len() int           { return len(s.segments) }
func (s *SegmentStore) NodeCount() int     { return len(s.nodes) }

func (s *SegmentStore) Get(id SegmentID) (*Segment, bool) {
	seg, ok := s.segments[id]
	return seg, ok
}

func (s *SegmentStore) NodeAt(id NodeID) Node { return s.nodes[id] }

// Each calls fn for every segment in insertion order.
func (s *SegmentStore) Each(fn func(*Segment)) {
	for _, id := range s.order {
		fn(s.segments[id])
	}
}

func finite(v Vec2) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

func (s *SegmentStore) validateCurve(c Curve) error {
	for _, p := range [...]Vec2{c.P0, c.P1, c.P2, c.P3} {
		if !finite(p) {
			return fmt.Errorf("%w: non-finite control point", ErrInvalidGeometry)
		}
	}
	if c.ArcLength() < s.tun.MinSegmentLength {
		return fmt.Errorf("%w: segment shorter than %.1f", ErrInvalidGeometry, s.tun.MinSegmentLength)
	}
	for _, p := range [...]Vec2{c.P0, c.P3} {
		cell := CellPos{
			X: int(math.Floor(p.X / s.grid.CellSize)),
			Y: int(math.Floor(p.Y / s.grid.CellSize)),
		}
		if !s.grid.InBounds(cell) {
			return fmt.Errorf("%w: endpoint off grid", ErrInvalidGeometry)
		}
	}
	return nil
}

// snapNode reuses the nearest existing node within the snap distance, or
// mints a new one. The linear scan keeps node ids in creation order, which
// the graph build relies on.
func (s *SegmentStore) snapNode(p Vec2) NodeID {
	best := -1
	bestDist := s.tun.NodeSnapDistance
	for i := range s.nodes {
		d := s.nodes[i].Pos.Dist(p)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best >= 0 {
		return NodeID(best)
	}
	s.nodes = append(s.nodes, Node{Pos: p})
	return NodeID(len(s.nodes) - 1)
}

// Add validates, snaps, rasterizes, and stamps a new segment. The newest
// segment wins ownership of any cell it shares with older roads.
func (s *SegmentStore) Add(c Curve, class uint8) (*Segment, error) {
	seg, err := s.addWithID(s.nextID, c, class)
	if err != nil {
		return nil, err
	}
	s.nextID++
	return seg, nil
}

// restoreNodes seeds the node table from a capture. Node ids are
// positional, so the table must be installed before any segment re-attaches.
func (s *SegmentStore) restoreNodes(pos []Vec2) {
	s.nodes = make([]Node, len(pos))
	for i, p := range pos {
		s.nodes[i].Pos = p
	}
}

// addRestored re-adds a segment from a snapshot under its original id and
// its original endpoint nodes. Re-snapping instead would mint fresh node
// ids and lose nodes whose segments were removed before the capture.
func (s *SegmentStore) addRestored(id SegmentID, c Curve, class uint8, a, b NodeID) error {
	if _, exists := s.segments[id]; exists {
		return fmt.Errorf("%w: duplicate segment %d", ErrStaleState, id)
	}
	if int(a) >= len(s.nodes) || int(b) >= len(s.nodes) {
		return fmt.Errorf("%w: segment %d references node beyond table", ErrStaleState, id)
	}
	seg, err := s.buildSegment(id, c, class)
	if err != nil {
		return err
	}
	seg.A, seg.B = a, b
	s.insert(seg)
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return nil
}

func (s *SegmentStore) addWithID(id SegmentID, c Curve, class uint8) (*Segment, error) {
	seg, err := s.buildSegment(id, c, class)
	if err != nil {
		return nil, err
	}
	seg.A = s.snapNode(c.P0)
	seg.B = s.snapNode(c.P3)
	s.insert(seg)
	return seg, nil
}

func (s *SegmentStore) buildSegment(id SegmentID, c Curve, class uint8) (*Segment, error) {
	def, ok := s.cats.ClassByIndex(class)
	if !ok {
		return nil, fmt.Errorf("%w: unknown road class %d", ErrInvalidGeometry, class)
	}
	if err := s.validateCurve(c); err != nil {
		return nil, err
	}
	line, cells := rasterize(s.grid, c, def.HalfWidthCells, s.tun.RasterSampleSpacing)
	for _, cell := range line {
		if s.grid.At(cell).Kind == CellWater {
			return nil, fmt.Errorf("%w: crosses water at (%d,%d)", ErrInvalidGeometry, cell.X, cell.Y)
		}
	}
	return &Segment{
		ID:        id,
		Class:     class,
		Curve:     c,
		ArcLength: c.ArcLength(),
		Line:      line,
		Cells:     cells,
	}, nil
}

func (s *SegmentStore) insert(seg *Segment) {
	s.segments[seg.ID] = seg
	s.order = append(s.order, seg.ID)
	s.nodes[seg.A].Segs = append(s.nodes[seg.A].Segs, seg.ID)
	if seg.B != seg.A {
		s.nodes[seg.B].Segs = append(s.nodes[seg.B].Segs, seg.ID)
	}
	s.stamp(seg)
	s.generation++
}

func (s *SegmentStore) stamp(seg *Segment) {
	for _, cell := range seg.Cells {
		if s.grid.At(cell).Kind == CellWater {
			continue
		}
		s.grid.set(cell, Cell{Kind: CellRoad, Class: seg.Class, Segment: seg.ID})
	}
}

// Remove deletes a segment and repairs the grid: cells still covered by
// surviving segments are restamped in insertion order, the rest revert to
// empty.
func (s *SegmentStore) Remove(id SegmentID) error {
	seg, ok := s.segments[id]
	if !ok {
		return fmt.Errorf("%w: segment %d", ErrNotFound, id)
	}
	delete(s.segments, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.detachFromNode(seg.A, id)
	if seg.B != seg.A {
		s.detachFromNode(seg.B, id)
	}

	affected := make(map[CellPos]struct{}, len(seg.Cells))
	for _, cell := range seg.Cells {
		affected[cell] = struct{}{}
		if s.grid.At(cell).Kind == CellRoad {
			s.grid.set(cell, Cell{})
		}
	}
	for _, oid := range s.order {
		other := s.segments[oid]
		for _, cell := range other.Cells {
			if _, hit := affected[cell]; hit && s.grid.At(cell).Kind != CellWater {
				s.grid.set(cell, Cell{Kind: CellRoad, Class: other.Class, Segment: other.ID})
			}
		}
	}
	s.generation++
	return nil
}

// Upgrade swaps a segment's road class in place. Geometry is kept, but the
// footprint is re-rasterized because class width may change.
func (s *SegmentStore) Upgrade(id SegmentID, class uint8) error {
	seg, ok := s.segments[id]
	if !ok {
		return fmt.Errorf("%w: segment %d", ErrNotFound, id)
	}
	def, ok := s.cats.ClassByIndex(class)
	if !ok {
		return fmt.Errorf("%w: unknown road class %d", ErrInvalidGeometry, class)
	}
	if class == seg.Class {
		return nil
	}

	old := seg.Cells
	seg.Class = class
	seg.Line, seg.Cells = rasterize(s.grid, seg.Curve, def.HalfWidthCells, s.tun.RasterSampleSpacing)

	// Clear the old footprint, let surviving segments reclaim shared
	// cells, then stamp the new footprint on top.
	affected := make(map[CellPos]struct{}, len(old))
	for _, cell := range old {
		affected[cell] = struct{}{}
		if s.grid.At(cell).Kind == CellRoad {
			s.grid.set(cell, Cell{})
		}
	}
	for _, oid := range s.order {
		other := s.segments[oid]
		if other.ID == seg.ID {
			continue
		}
		for _, cell := range other.Cells {
			if _, hit := affected[cell]; hit && s.grid.At(cell).Kind != CellWater {
				s.grid.set(cell, Cell{Kind: CellRoad, Class: other.Class, Segment: other.ID})
			}
		}
	}
	s.stamp(seg)
	s.generation++
	return nil
}

func (s *SegmentStore) detachFromNode(n NodeID, id SegmentID) {
	segs := s.nodes[n].Segs
	for i, sid := range segs {
		if sid == id {
			s.nodes[n].Segs = append(segs[:i], segs[i+1:]...)
			return
		}
	}
}
