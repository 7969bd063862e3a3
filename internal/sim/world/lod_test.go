package world

import (
	"testing"

	"cityflow.sim/internal/sim/tuning"
)

func TestLOD_ConservesPopulation(t *testing.T) {
	tn := tuning.Defaults()
	tn.MaxRealAgents = 64
	tn.LODRebalanceEveryTicks = 1
	cfg := WorldConfig{
		ID:              "test",
		Seed:            7,
		DayTicks:        2400,
		GridWidth:       64,
		GridHeight:      64,
		CellSize:        16,
		TotalPopulation: 3000,
		Tuning:          &tn,
	}
	w, err := New(cfg, testCatalogs(t))
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	vp := Vec2{X: 512, Y: 512}
	w.StepOnce(vp, ringEdits())
	for i := 0; i < 4; i++ {
		w.StepOnce(vp, nil)
	}

	if len(w.agents) == 0 {
		t.Fatalf("no agents materialized near the viewpoint")
	}
	if len(w.agents) > tn.MaxRealAgents {
		t.Fatalf("agents = %d, budget %d", len(w.agents), tn.MaxRealAgents)
	}
	if got := uint64(len(w.agents)) + w.vpop.TotalVirtual(); got != cfg.TotalPopulation {
		t.Fatalf("real+virtual = %d, want %d", got, cfg.TotalPopulation)
	}
}

func TestLOD_DematerializesOutsideRadius(t *testing.T) {
	tn := tuning.Defaults()
	tn.MaxRealAgents = 64
	tn.LODRebalanceEveryTicks = 1
	tn.DistrictSizeCells = 16
	tn.FullTierRadiusCells = 4
	tn.SimplifiedTierRadiusCells = 16
	cfg := WorldConfig{
		ID:              "test",
		Seed:            11,
		DayTicks:        2400,
		GridWidth:       64,
		GridHeight:      64,
		CellSize:        16,
		TotalPopulation: 3000,
		Tuning:          &tn,
	}
	w, err := New(cfg, testCatalogs(t))
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	center := Vec2{X: 512, Y: 512}
	w.StepOnce(center, ringEdits())
	w.StepOnce(center, nil)
	if len(w.agents) == 0 {
		t.Fatalf("no agents materialized at center")
	}

	centerIDs := map[AgentID]bool{}
	for id := range w.agents {
		centerIDs[id] = true
	}

	// Walk the viewpoint to the corner; everyone near the center is now
	// out of range and should fold back into the buckets.
	corner := Vec2{X: 0, Y: 0}
	w.StepOnce(corner, nil)

	for id := range w.agents {
		if centerIDs[id] {
			t.Fatalf("agent %d from the center survived the viewpoint move", id)
		}
	}
	if got := uint64(len(w.agents)) + w.vpop.TotalVirtual(); got != cfg.TotalPopulation {
		t.Fatalf("real+virtual = %d, want %d", got, cfg.TotalPopulation)
	}
}
