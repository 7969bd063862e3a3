package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"cityflow.sim/internal/persistence/snapshot"
	"cityflow.sim/internal/protocol"
	"cityflow.sim/internal/sim/catalogs"
	"cityflow.sim/internal/sim/tuning"
	"cityflow.sim/internal/sim/world"
)

func TestSQLiteIndexPersistsRows(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := idx.UpsertCatalogs("", cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert catalogs: %v", err)
	}

	for tick := uint64(0); tick < 5; tick++ {
		entry := world.TickLogEntry{
			Tick:      tick,
			Viewpoint: [2]float64{512, 512},
			Digest:    "d",
		}
		if tick == 2 {
			entry.Edits = []world.RecordedEdit{
				{
					SessionID: "s-1",
					Edit: protocol.EditMsg{
						Type: protocol.TypeEdit,
						ID:   "E1",
						Op:   protocol.OpPlaceRoad,
						Place: &protocol.PlaceRoad{
							From:  [2]float64{100, 100},
							To:    [2]float64{500, 100},
							Class: "LOCAL",
						},
					},
				},
			}
		}
		if err := idx.WriteTick(entry); err != nil {
			t.Fatalf("write tick: %v", err)
		}
	}

	idx.RecordSnapshot("/tmp/3000.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, WorldID: "test", Tick: 3000},
		Seed:   42,
	})
	idx.RecordStats(world.WorldMetrics{Tick: 4, RealAgents: 7, VirtualTotal: 993})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	count := func(q string) int {
		var n int
		if err := db.QueryRow(q).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count(`SELECT COUNT(*) FROM ticks`); n != 5 {
		t.Fatalf("ticks = %d, want 5", n)
	}
	if n := count(`SELECT COUNT(*) FROM edits WHERE session_id = 's-1'`); n != 1 {
		t.Fatalf("edits = %d, want 1", n)
	}
	if n := count(`SELECT COUNT(*) FROM snapshots`); n != 1 {
		t.Fatalf("snapshots = %d, want 1", n)
	}
	if n := count(`SELECT COUNT(*) FROM stats`); n != 1 {
		t.Fatalf("stats = %d, want 1", n)
	}
	if n := count(`SELECT COUNT(*) FROM catalogs`); n < 3 {
		t.Fatalf("catalogs rows = %d, want at least palette+profiles+tuning", n)
	}

	var op string
	if err := db.QueryRow(`SELECT op FROM edits WHERE tick = 2 AND seq = 0`).Scan(&op); err != nil {
		t.Fatalf("edit row: %v", err)
	}
	if op != protocol.OpPlaceRoad {
		t.Fatalf("op = %q", op)
	}

	// Writes after Close are dropped, not fatal.
	if err := idx.WriteTick(world.TickLogEntry{Tick: 99}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
}
