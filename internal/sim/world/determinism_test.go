package world

import (
	"testing"
)

func TestDeterminism_SameEditStreamSameDigests(t *testing.T) {
	cats := testCatalogs(t)
	cfg := WorldConfig{
		ID:              "test",
		Seed:            42,
		TickRateHz:      10,
		DayTicks:        2400,
		GridWidth:       64,
		GridHeight:      64,
		CellSize:        16,
		TotalPopulation: 4000,
	}
	w1, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("world1: %v", err)
	}
	w2, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("world2: %v", err)
	}

	vp := Vec2{X: 512, Y: 512}
	edits := ringEdits()
	// One invalid edit rides along: rejections are part of the recorded
	// stream and must replay identically.
	edits = append(edits, RecordedEdit{
		SessionID: "s-2",
		Edit:      placeEdit("E5", "LOCAL", Vec2{X: 500, Y: 500}, Vec2{X: 502, Y: 500}),
	})

	for i := 0; i < 50; i++ {
		var batch []RecordedEdit
		if i == 0 {
			batch = edits
		}
		t1, d1 := w1.StepOnce(vp, batch)
		t2, d2 := w2.StepOnce(vp, batch)
		if t1 != t2 {
			t.Fatalf("tick mismatch: %d vs %d", t1, t2)
		}
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", t1, d1, d2)
		}
	}
	if w1.store.Len() != 4 {
		t.Fatalf("expected 4 segments after one rejected edit, got %d", w1.store.Len())
	}

	// Jump both worlds into the morning commute so movement, traffic
	// deposits, and virtual flow all run.
	w1.tick.Store(700)
	w2.tick.Store(700)
	for i := 0; i < 100; i++ {
		t1, d1 := w1.StepOnce(vp, nil)
		_, d2 := w2.StepOnce(vp, nil)
		if d1 != d2 {
			t.Fatalf("digest mismatch at commute tick %d", t1)
		}
	}
}

func TestDeterminism_TickLogReplayReproducesDigests(t *testing.T) {
	cats := testCatalogs(t)
	cfg := WorldConfig{
		ID:              "test",
		Seed:            7,
		TickRateHz:      10,
		DayTicks:        2400,
		GridWidth:       64,
		GridHeight:      64,
		CellSize:        16,
		TotalPopulation: 2000,
	}
	w1, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("world1: %v", err)
	}
	rec := &memTickLog{}
	w1.SetTickLogger(rec)

	vp := Vec2{X: 512, Y: 512}
	var segID SegmentID
	for i := 0; i < 30; i++ {
		switch i {
		case 0:
			w1.StepOnce(vp, ringEdits())
		case 5:
			// Find a live segment to mutate mid-run.
			w1.store.Each(func(s *Segment) { segID = s.ID })
			w1.StepOnce(vp, []RecordedEdit{
				{SessionID: "s-1", Edit: upgradeEdit("U1", segID, "BOULEVARD")},
			})
		case 9:
			w1.StepOnce(vp, []RecordedEdit{
				{SessionID: "s-1", Edit: removeEdit("R1", segID)},
			})
		case 14:
			// Move the viewpoint; the log must carry it.
			vp = Vec2{X: 200, Y: 200}
			w1.StepOnce(vp, nil)
		default:
			w1.StepOnce(vp, nil)
		}
	}

	if len(rec.entries) != 30 {
		t.Fatalf("expected 30 log entries, got %d", len(rec.entries))
	}

	w2, err := New(cfg, cats)
	if err != nil {
		t.Fatalf("world2: %v", err)
	}
	for _, entry := range rec.entries {
		evp := Vec2{X: entry.Viewpoint[0], Y: entry.Viewpoint[1]}
		tick, digest := w2.StepOnce(evp, entry.Edits)
		if tick != entry.Tick {
			t.Fatalf("replay tick %d, log says %d", tick, entry.Tick)
		}
		if digest != entry.Digest {
			t.Fatalf("replay digest diverged at tick %d", tick)
		}
	}
}

type memTickLog struct {
	entries []TickLogEntry
}

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}
