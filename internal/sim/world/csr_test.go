package world

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestCSR_BuildGraphTopologyAndWeights(t *testing.T) {
	s, _ := testStore(t, 64, 64)
	local := classIndex(t, s.cats, "LOCAL")

	s1, err := s.Add(Line(Vec2{X: 100, Y: 100}, Vec2{X: 500, Y: 100}), local)
	if err != nil {
		t.Fatalf("add s1: %v", err)
	}
	if _, err := s.Add(Line(Vec2{X: 500, Y: 100}, Vec2{X: 900, Y: 100}), local); err != nil {
		t.Fatalf("add s2: %v", err)
	}

	g, err := BuildGraph(s)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if g.NodeCount() != 3 {
		t.Fatalf("nodes = %d, want 3", g.NodeCount())
	}
	if g.EdgeCount() != 4 {
		t.Fatalf("edges = %d, want 4 (two per segment)", g.EdgeCount())
	}
	if g.Degree(s1.B) != 2 {
		t.Fatalf("middle node degree = %d, want 2", g.Degree(s1.B))
	}
	if g.Generation != s.Generation() {
		t.Fatalf("graph generation %d, store %d", g.Generation, s.Generation())
	}

	// 400 units at 0.8 cells/tick over 16-unit cells is 31.25 ticks.
	want := 400.0 / (16 * 0.8)
	got := g.Weights[g.RowOffsets[s1.A]]
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("free-flow weight = %v, want %v", got, want)
	}
}

func TestCSR_BuildGraphIsDeterministic(t *testing.T) {
	build := func() *CSRGraph {
		s, _ := testStore(t, 64, 64)
		local := classIndex(t, s.cats, "LOCAL")
		avenue := classIndex(t, s.cats, "AVENUE")
		if _, err := s.Add(Line(Vec2{X: 100, Y: 100}, Vec2{X: 900, Y: 100}), avenue); err != nil {
			t.Fatalf("add: %v", err)
		}
		if _, err := s.Add(Line(Vec2{X: 900, Y: 100}, Vec2{X: 900, Y: 900}), local); err != nil {
			t.Fatalf("add: %v", err)
		}
		if _, err := s.Add(Line(Vec2{X: 900, Y: 900}, Vec2{X: 100, Y: 100}), local); err != nil {
			t.Fatalf("add: %v", err)
		}
		g, err := BuildGraph(s)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return g
	}
	if !reflect.DeepEqual(build(), build()) {
		t.Fatalf("identical edit histories must build identical graphs")
	}
}

func TestCSR_ValidateRejectsMalformedGraphs(t *testing.T) {
	bad := &CSRGraph{
		NodePos:    make([]Vec2, 2),
		RowOffsets: []uint32{0, 1},
	}
	if err := bad.Validate(); !errors.Is(err, ErrGraphBuild) {
		t.Fatalf("offset length: err = %v, want ErrGraphBuild", err)
	}

	bad = &CSRGraph{
		NodePos:    make([]Vec2, 2),
		RowOffsets: []uint32{0, 1, 2},
		Cols:       []uint32{1, 0},
		EdgeSeg:    []SegmentID{1, 1},
		Weights:    []float64{3, 0},
	}
	if err := bad.Validate(); !errors.Is(err, ErrGraphBuild) {
		t.Fatalf("zero weight: err = %v, want ErrGraphBuild", err)
	}
}
