package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "3000.snap.zst")

	in := SnapshotV1{
		Header:          Header{Version: 1, WorldID: "city_1", Tick: 3000},
		Seed:            1337,
		TickRate:        10,
		DayTicks:        14400,
		GridWidth:       64,
		GridHeight:      64,
		CellSize:        16,
		TotalPopulation: 50000,
		Viewpoint:       [2]float64{512, 512},
		Traffic:         []float32{0, 1.5, 0, 3},
		Nodes: []NodeV1{
			{Pos: [2]float64{96, 96}},
			{Pos: [2]float64{928, 96}},
		},
		Segments: []SegmentV1{
			{
				ID:    1,
				Class: "AVENUE",
				A:     0,
				B:     1,
				Control: [4][2]float64{
					{96, 96}, {373, 96}, {650, 96}, {928, 96},
				},
			},
		},
		Agents: []AgentV1{
			{
				ID:        4,
				District:  2,
				Home:      [2]int{6, 6},
				Work:      [2]int{58, 6},
				State:     "COMMUTING",
				Waypoints: [][2]int{{6, 6}, {7, 6}},
			},
		},
		Districts: []DistrictV1{
			{ID: 0, Virtual: []uint32{100, 20, 10}},
		},
		Counters: CountersV1{NextSegment: 2, NextAgent: 5},
	}

	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in  %+v\n out %+v", in, out)
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
