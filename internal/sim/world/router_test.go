package world

import (
	"errors"
	"math"
	"testing"
)

func newRouterWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(WorldConfig{
		ID:         "test",
		Seed:       13,
		DayTicks:   2400,
		GridWidth:  64,
		GridHeight: 64,
		CellSize:   16,
	}, testCatalogs(t))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func TestRouter_RejectsOffNetworkEndpoints(t *testing.T) {
	w := newRouterWorld(t)
	mustPlace(t, w, "LOCAL", Vec2{X: 100, Y: 200}, Vec2{X: 500, Y: 200})
	env := w.routeEnv()

	road := w.grid.WorldToCell(Vec2{X: 300, Y: 200})
	empty := CellPos{X: 40, Y: 40}
	if _, err := env.FindPath(empty, road, 0); !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("empty origin: err = %v, want ErrInvalidEndpoint", err)
	}
	if _, err := env.FindPath(road, CellPos{X: -1, Y: 0}, 0); !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("off-grid goal: err = %v, want ErrInvalidEndpoint", err)
	}
}

func TestRouter_SameCellAndSameSegment(t *testing.T) {
	w := newRouterWorld(t)
	mustPlace(t, w, "LOCAL", Vec2{X: 100, Y: 200}, Vec2{X: 900, Y: 200})
	env := w.routeEnv()

	from := w.grid.WorldToCell(Vec2{X: 150, Y: 200})
	to := w.grid.WorldToCell(Vec2{X: 850, Y: 200})

	p, err := env.FindPath(from, from, 0)
	if err != nil || len(p.Waypoints) != 1 || p.Waypoints[0] != from {
		t.Fatalf("trivial path: %v %v", p.Waypoints, err)
	}

	p, err = env.FindPath(from, to, 0)
	if err != nil {
		t.Fatalf("same segment: %v", err)
	}
	if p.Degraded {
		t.Fatalf("same-segment path should not be degraded")
	}
	if p.Waypoints[0] != from || p.Waypoints[len(p.Waypoints)-1] != to {
		t.Fatalf("endpoints %v .. %v, want %v .. %v", p.Waypoints[0], p.Waypoints[len(p.Waypoints)-1], from, to)
	}
	if p.Cost <= 0 {
		t.Fatalf("cost = %v", p.Cost)
	}
}

func TestRouter_StraightRoadFreeFlowCost(t *testing.T) {
	w := newRouterWorld(t)
	id := mustPlace(t, w, "LOCAL", Vec2{X: 100, Y: 200}, Vec2{X: 900, Y: 200})
	env := w.routeEnv()

	seg, ok := w.store.Get(id)
	if !ok {
		t.Fatalf("segment %d missing", id)
	}
	car := w.cats.Profiles.Index["CAR"]
	p, err := env.FindPath(seg.Line[0], seg.Line[len(seg.Line)-1], car)
	if err != nil {
		t.Fatalf("route: %v", err)
	}

	def := w.cats.Roads.Defs["LOCAL"]
	prof := w.cats.Profiles.Defs["CAR"]
	want := seg.ArcLength / (w.grid.CellSize * def.SpeedCellsPerTick * prof.SpeedMultiplier)
	if math.Abs(p.Cost-want) > 1e-9*want {
		t.Fatalf("free-flow cost = %v, want %v", p.Cost, want)
	}
}

func TestRouter_RoutesAcrossSharedNodes(t *testing.T) {
	w := newRouterWorld(t)
	mustPlace(t, w, "LOCAL", Vec2{X: 100, Y: 200}, Vec2{X: 500, Y: 200})
	mustPlace(t, w, "LOCAL", Vec2{X: 500, Y: 200}, Vec2{X: 500, Y: 800})
	env := w.routeEnv()

	from := w.grid.WorldToCell(Vec2{X: 150, Y: 200})
	to := w.grid.WorldToCell(Vec2{X: 500, Y: 750})
	p, err := env.FindPath(from, to, 0)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if p.Degraded {
		t.Fatalf("graph route should not be degraded")
	}
	if p.Waypoints[0] != from || p.Waypoints[len(p.Waypoints)-1] != to {
		t.Fatalf("endpoints %v .. %v", p.Waypoints[0], p.Waypoints[len(p.Waypoints)-1])
	}
	if p.Generation != w.store.Generation() {
		t.Fatalf("path generation %d, store %d", p.Generation, w.store.Generation())
	}
}

func TestRouter_AvoidsCongestedSegment(t *testing.T) {
	w := newRouterWorld(t)
	// Direct east-west road through the middle, plus a three-segment
	// detour over the top sharing the direct road's endpoint nodes.
	direct := mustPlace(t, w, "LOCAL", Vec2{X: 96, Y: 496}, Vec2{X: 928, Y: 496})
	mustPlace(t, w, "LOCAL", Vec2{X: 96, Y: 496}, Vec2{X: 96, Y: 96})
	mustPlace(t, w, "LOCAL", Vec2{X: 96, Y: 96}, Vec2{X: 928, Y: 96})
	mustPlace(t, w, "LOCAL", Vec2{X: 928, Y: 96}, Vec2{X: 928, Y: 496})

	from := w.grid.WorldToCell(Vec2{X: 96, Y: 450})  // on the west leg
	to := w.grid.WorldToCell(Vec2{X: 928, Y: 450})   // on the east leg
	directMid := w.grid.WorldToCell(Vec2{X: 512, Y: 496})
	topMid := w.grid.WorldToCell(Vec2{X: 512, Y: 96})

	// Uncongested, the direct road wins.
	env := w.routeEnv()
	p, err := env.FindPath(from, to, 0)
	if err != nil {
		t.Fatalf("free-flow route: %v", err)
	}
	if !containsCell(p.Waypoints, directMid) {
		t.Fatalf("free-flow route should use the direct road")
	}

	// Saturate the direct road's interior and reprice.
	seg, _ := w.store.Get(direct)
	for _, c := range seg.Line[4 : len(seg.Line)-4] {
		w.traffic.Deposit(c, 2000)
	}
	w.traffic.Apply(0.92)
	w.ratios = SegmentRatios(w.store, w.traffic)

	env = w.routeEnv()
	p, err = env.FindPath(from, to, 0)
	if err != nil {
		t.Fatalf("congested route: %v", err)
	}
	if containsCell(p.Waypoints, directMid) {
		t.Fatalf("route should avoid the congested road")
	}
	if !containsCell(p.Waypoints, topMid) {
		t.Fatalf("route should take the detour")
	}
}

func TestRouter_GridFallbackThroughCrossing(t *testing.T) {
	w := newRouterWorld(t)
	// Two roads crossing mid-segment share cells but no graph node, so
	// the graph sees two components.
	mustPlace(t, w, "LOCAL", Vec2{X: 100, Y: 496}, Vec2{X: 900, Y: 496})
	mustPlace(t, w, "LOCAL", Vec2{X: 496, Y: 100}, Vec2{X: 496, Y: 900})
	env := w.routeEnv()

	from := w.grid.WorldToCell(Vec2{X: 150, Y: 496})
	to := w.grid.WorldToCell(Vec2{X: 496, Y: 850})
	p, err := env.FindPath(from, to, 0)
	if err != nil {
		t.Fatalf("fallback route: %v", err)
	}
	if !p.Degraded {
		t.Fatalf("crossing route must come from the grid fallback")
	}
	if p.Waypoints[0] != from || p.Waypoints[len(p.Waypoints)-1] != to {
		t.Fatalf("endpoints %v .. %v", p.Waypoints[0], p.Waypoints[len(p.Waypoints)-1])
	}
}

func TestRouter_UnreachableComponents(t *testing.T) {
	w := newRouterWorld(t)
	mustPlace(t, w, "LOCAL", Vec2{X: 100, Y: 100}, Vec2{X: 400, Y: 100})
	mustPlace(t, w, "LOCAL", Vec2{X: 100, Y: 900}, Vec2{X: 400, Y: 900})
	env := w.routeEnv()

	from := w.grid.WorldToCell(Vec2{X: 200, Y: 100})
	to := w.grid.WorldToCell(Vec2{X: 200, Y: 900})
	if _, err := env.FindPath(from, to, 0); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func containsCell(cells []CellPos, c CellPos) bool {
	for _, x := range cells {
		if x == c {
			return true
		}
	}
	return false
}
