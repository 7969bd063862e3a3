package world

import (
	"errors"
	"testing"

	"cityflow.sim/internal/sim/tuning"
)

func TestSnapshot_RoundTripPreservesDigest(t *testing.T) {
	cats := testCatalogs(t)
	tn := tuning.Defaults()
	tn.MaxRealAgents = 32
	tn.LODRebalanceEveryTicks = 1
	cfg := WorldConfig{
		ID:              "city_test",
		Seed:            9,
		DayTicks:        2400,
		GridWidth:       64,
		GridHeight:      64,
		CellSize:        16,
		TotalPopulation: 2000,
		Tuning:          &tn,
	}
	w1, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	vp := Vec2{X: 512, Y: 512}
	w1.StepOnce(vp, ringEdits())
	// A placed-then-removed road leaves the mutation counter ahead of the
	// surviving segment count; the capture must carry that.
	w1.StepOnce(vp, []RecordedEdit{
		{SessionID: "s-1", Edit: placeEdit("E5", "LOCAL", Vec2{X: 200, Y: 512}, Vec2{X: 800, Y: 512})},
	})
	w1.StepOnce(vp, []RecordedEdit{
		{SessionID: "s-1", Edit: removeEdit("R1", 5)},
	})
	var lastTick uint64
	for i := 0; i < 8; i++ {
		lastTick, _ = w1.StepOnce(vp, nil)
	}

	snap := w1.ExportSnapshot(lastTick)
	if snap.Header.WorldID != "city_test" || snap.Header.Tick != lastTick {
		t.Fatalf("snapshot header %+v", snap.Header)
	}
	if len(snap.Segments) != 4 {
		t.Fatalf("snapshot segments = %d, want 4", len(snap.Segments))
	}
	// The removed road's endpoint nodes stay in the table; the capture must
	// carry all six, not just the four the surviving ring uses.
	if len(snap.Nodes) != 6 || w1.store.NodeCount() != 6 {
		t.Fatalf("snapshot nodes = %d (store %d), want 6", len(snap.Nodes), w1.store.NodeCount())
	}

	w2, err := NewFromSnapshot(snap, cats, &tn)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := w2.CurrentTick(); got != lastTick+1 {
		t.Fatalf("resume tick = %d, want %d", got, lastTick+1)
	}
	if got := uint64(len(w2.agents)) + w2.vpop.TotalVirtual(); got != cfg.TotalPopulation {
		t.Fatalf("restored real+virtual = %d, want %d", got, cfg.TotalPopulation)
	}
	if w2.store.NodeCount() != w1.store.NodeCount() {
		t.Fatalf("restored node table = %d nodes, want %d", w2.store.NodeCount(), w1.store.NodeCount())
	}
	if w2.Graph().NodeCount() != w1.Graph().NodeCount() {
		t.Fatalf("restored graph = %d nodes, want %d", w2.Graph().NodeCount(), w1.Graph().NodeCount())
	}

	// The restored world must walk in lockstep with the original.
	for i := 0; i < 5; i++ {
		t1, d1 := w1.StepOnce(vp, nil)
		t2, d2 := w2.StepOnce(vp, nil)
		if t1 != t2 {
			t.Fatalf("tick mismatch after restore: %d vs %d", t1, t2)
		}
		if d1 != d2 {
			t.Fatalf("digest diverged at tick %d after restore", t1)
		}
	}
}

func TestSnapshot_RestoreRejectsBadCaptures(t *testing.T) {
	cats := testCatalogs(t)
	tn := tuning.Defaults()
	cfg := WorldConfig{
		ID:         "test",
		Seed:       3,
		DayTicks:   2400,
		GridWidth:  64,
		GridHeight: 64,
		CellSize:   16,
		Tuning:     &tn,
	}
	w, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	w.StepOnce(Vec2{X: 512, Y: 512}, ringEdits())

	snap := w.ExportSnapshot(0)
	snap.Header.Version = 2
	if _, err := NewFromSnapshot(snap, cats, &tn); !errors.Is(err, ErrStaleState) {
		t.Fatalf("bad version: err = %v, want ErrStaleState", err)
	}

	snap = w.ExportSnapshot(0)
	snap.Segments[0].Class = "MAGLEV"
	if _, err := NewFromSnapshot(snap, cats, &tn); !errors.Is(err, ErrStaleState) {
		t.Fatalf("unknown class: err = %v, want ErrStaleState", err)
	}

	snap = w.ExportSnapshot(0)
	snap.Districts = snap.Districts[:1]
	if _, err := NewFromSnapshot(snap, cats, &tn); !errors.Is(err, ErrStaleState) {
		t.Fatalf("district mismatch: err = %v, want ErrStaleState", err)
	}

	snap = w.ExportSnapshot(0)
	snap.Nodes = nil
	if _, err := NewFromSnapshot(snap, cats, &tn); !errors.Is(err, ErrStaleState) {
		t.Fatalf("missing node table: err = %v, want ErrStaleState", err)
	}
}

func TestSnapshot_CommuterWithoutPathRepaths(t *testing.T) {
	cats := testCatalogs(t)
	tn := tuning.Defaults()
	tn.MaxRealAgents = 32
	tn.LODRebalanceEveryTicks = 1
	cfg := WorldConfig{
		ID:              "test",
		Seed:            11,
		DayTicks:        2400,
		GridWidth:       64,
		GridHeight:      64,
		CellSize:        16,
		TotalPopulation: 2000,
		Tuning:          &tn,
	}
	w, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	vp := Vec2{X: 512, Y: 512}
	w.StepOnce(vp, ringEdits())
	var lastTick uint64
	for i := 0; i < 4; i++ {
		lastTick, _ = w.StepOnce(vp, nil)
	}

	snap := w.ExportSnapshot(lastTick)
	if len(snap.Agents) == 0 {
		t.Fatalf("no agents materialized")
	}

	// A crash can capture a commuter whose waypoints never made it out.
	// Home and work sit on the ring's north avenue.
	av := &snap.Agents[0]
	av.State = "COMMUTING"
	av.Waypoints = nil
	av.Cursor = 0
	av.Frac = 0
	av.Returning = false
	av.Home = [2]int{10, 6}
	av.Work = [2]int{50, 6}
	av.Pos = [2]float64{168, 104}
	av.RetryAttempts = 0
	av.NextRetryTick = 0

	w2, err := NewFromSnapshot(snap, cats, &tn)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	id := AgentID(av.ID)
	a := w2.agents[id]
	if a == nil {
		t.Fatalf("agent %d not restored", id)
	}
	if !a.NeedsRepath || len(a.Path) != 0 {
		t.Fatalf("commuter without waypoints: needsRepath=%v pathLen=%d, want repath with no path", a.NeedsRepath, len(a.Path))
	}

	w2.StepOnce(vp, nil)
	a = w2.agents[id]
	if a == nil {
		t.Fatalf("agent dropped while repathing")
	}
	if a.NeedsRepath || len(a.Path) == 0 {
		t.Fatalf("repath not served on first resumed tick: needsRepath=%v pathLen=%d", a.NeedsRepath, len(a.Path))
	}
	if a.State != AgentCommuting {
		t.Fatalf("state = %v, want commuting", a.State)
	}
}
