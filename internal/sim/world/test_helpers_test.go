package world

import (
	"testing"

	"cityflow.sim/internal/protocol"
	"cityflow.sim/internal/sim/catalogs"
	"cityflow.sim/internal/sim/tuning"
)

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func testTuning() *tuning.Tuning {
	tn := tuning.Defaults()
	return &tn
}

func testStore(t *testing.T, gridW, gridH int) (*SegmentStore, *CellGrid) {
	t.Helper()
	grid := NewCellGrid(gridW, gridH, 16)
	return NewSegmentStore(grid, testCatalogs(t), testTuning()), grid
}

func classIndex(t *testing.T, cats *catalogs.Catalogs, id string) uint8 {
	t.Helper()
	idx, ok := cats.Roads.Index[id]
	if !ok {
		t.Fatalf("missing road class %q", id)
	}
	return idx
}

func placeEdit(id, class string, from, to Vec2) protocol.EditMsg {
	return protocol.EditMsg{
		Type:            protocol.TypeEdit,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Op:              protocol.OpPlaceRoad,
		Place: &protocol.PlaceRoad{
			From:  [2]float64{from.X, from.Y},
			To:    [2]float64{to.X, to.Y},
			Class: class,
		},
	}
}

func removeEdit(id string, seg SegmentID) protocol.EditMsg {
	return protocol.EditMsg{
		Type:            protocol.TypeEdit,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Op:              protocol.OpRemoveRoad,
		Remove:          &protocol.RemoveRoad{SegmentID: uint32(seg)},
	}
}

func upgradeEdit(id string, seg SegmentID, class string) protocol.EditMsg {
	return protocol.EditMsg{
		Type:            protocol.TypeEdit,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Op:              protocol.OpUpgradeRoad,
		Upgrade:         &protocol.UpgradeRoad{SegmentID: uint32(seg), Class: class},
	}
}

// mustPlace applies a place edit directly and republishes the routing
// graph, the way a step would.
func mustPlace(t *testing.T, w *World, class string, from, to Vec2) SegmentID {
	t.Helper()
	res := w.applyEdit(placeEdit("E", class, from, to), w.tick.Load())
	if !res.Accepted {
		t.Fatalf("place %s (%.0f,%.0f)-(%.0f,%.0f): %s %s", class, from.X, from.Y, to.X, to.Y, res.Code, res.Message)
	}
	w.maybeRebuildGraph()
	return SegmentID(res.SegmentID)
}

// ringEdits lays a connected rectangle of avenues around the middle of a
// 64x64-cell, 16-unit-cell grid. Corners land on shared nodes so the
// routing graph is a single component.
func ringEdits() []RecordedEdit {
	return []RecordedEdit{
		{SessionID: "s-1", Edit: placeEdit("E1", "AVENUE", Vec2{X: 96, Y: 96}, Vec2{X: 928, Y: 96})},
		{SessionID: "s-1", Edit: placeEdit("E2", "AVENUE", Vec2{X: 928, Y: 96}, Vec2{X: 928, Y: 928})},
		{SessionID: "s-1", Edit: placeEdit("E3", "AVENUE", Vec2{X: 928, Y: 928}, Vec2{X: 96, Y: 928})},
		{SessionID: "s-1", Edit: placeEdit("E4", "AVENUE", Vec2{X: 96, Y: 928}, Vec2{X: 96, Y: 96})},
	}
}
