package world

import (
	"fmt"

	"cityflow.sim/internal/persistence/snapshot"
	"cityflow.sim/internal/sim/catalogs"
	"cityflow.sim/internal/sim/tuning"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		DayTicks:           w.cfg.DayTicks,
		GridWidth:          w.cfg.GridWidth,
		GridHeight:         w.cfg.GridHeight,
		CellSize:           w.cfg.CellSize,
		WaterRegionSize:    w.cfg.WaterRegionSize,
		WaterPermille:      w.cfg.WaterPermille,
		TotalPopulation:    w.cfg.TotalPopulation,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		TuningDigest:       w.tun.Digest,
		RoadCatalogDigest:  w.cats.Roads.Digest,
		Viewpoint:          [2]float64{w.viewpoint.X, w.viewpoint.Y},
		Traffic:            append([]float32(nil), w.traffic.load...),
		Counters: snapshot.CountersV1{
			NextSegment:     uint32(w.store.nextID),
			NextAgent:       w.nextAgentNum,
			StoreGeneration: w.store.generation,
		},
	}

	for i := range w.store.nodes {
		p := w.store.nodes[i].Pos
		snap.Nodes = append(snap.Nodes, snapshot.NodeV1{Pos: [2]float64{p.X, p.Y}})
	}
	w.store.Each(func(seg *Segment) {
		def, _ := w.cats.Roads.ClassByIndex(seg.Class)
		c := seg.Curve
		snap.Segments = append(snap.Segments, snapshot.SegmentV1{
			ID:    uint32(seg.ID),
			Class: def.ID,
			A:     uint32(seg.A),
			B:     uint32(seg.B),
			Control: [4][2]float64{
				{c.P0.X, c.P0.Y}, {c.P1.X, c.P1.Y}, {c.P2.X, c.P2.Y}, {c.P3.X, c.P3.Y},
			},
		})
	})

	for _, id := range sortedAgents(w.agents) {
		a := w.agents[id]
		av := snapshot.AgentV1{
			ID:            uint64(a.ID),
			District:      a.District,
			Bucket:        a.Bucket,
			Profile:       a.Profile,
			Home:          [2]int{a.Home.X, a.Home.Y},
			Work:          [2]int{a.Work.X, a.Work.Y},
			Tier:          uint8(a.Tier),
			State:         a.State.String(),
			Returning:     a.Returning,
			Pos:           [2]float64{a.Pos.X, a.Pos.Y},
			Cursor:        a.Cursor,
			Frac:          a.Frac,
			PathGen:       a.PathGen,
			WantsPath:     a.WantsPath,
			NeedsRepath:   a.NeedsRepath,
			DepartJitter:  a.DepartJitter,
			RetryAttempts: a.RetryAttempts,
			NextRetryTick: a.NextRetryTick,
			TryEpoch:      a.TryEpoch,
		}
		for _, c := range a.Path {
			av.Waypoints = append(av.Waypoints, [2]int{c.X, c.Y})
		}
		snap.Agents = append(snap.Agents, av)
	}

	for i := range w.vpop.Districts {
		d := &w.vpop.Districts[i]
		snap.Districts = append(snap.Districts, snapshot.DistrictV1{
			ID:      d.ID,
			Virtual: append([]uint32(nil), d.Virtual[:]...),
		})
	}
	return snap
}

func parseAgentState(s string) (AgentState, error) {
	switch s {
	case "AT_HOME":
		return AgentAtHome, nil
	case "COMMUTING":
		return AgentCommuting, nil
	case "AT_WORK":
		return AgentAtWork, nil
	default:
		return 0, fmt.Errorf("%w: agent state %q", ErrStaleState, s)
	}
}

// NewFromSnapshot rebuilds a world from a capture. The node table is
// installed first (node ids are positional and outlive their segments),
// then roads are re-added in their original order with their original ids
// and endpoint nodes; anything derived (grid stamps, routing graph) is
// rebuilt rather than trusted. Paths held
// by agents are revalidated lazily: the store generation is new, so the
// first advance of each commuter rechecks its waypoints and requests a
// repath if an edit between snapshot and crash invalidated them.
func NewFromSnapshot(snap snapshot.SnapshotV1, cats *catalogs.Catalogs, tun *tuning.Tuning) (*World, error) {
	if snap.Header.Version != 1 {
		return nil, fmt.Errorf("%w: snapshot version %d", ErrStaleState, snap.Header.Version)
	}
	cfg := WorldConfig{
		ID:                 snap.Header.WorldID,
		Seed:               snap.Seed,
		TickRateHz:         snap.TickRate,
		DayTicks:           snap.DayTicks,
		GridWidth:          snap.GridWidth,
		GridHeight:         snap.GridHeight,
		CellSize:           snap.CellSize,
		WaterRegionSize:    snap.WaterRegionSize,
		WaterPermille:      snap.WaterPermille,
		TotalPopulation:    snap.TotalPopulation,
		SnapshotEveryTicks: snap.SnapshotEveryTicks,
		Tuning:             tun,
	}
	w, err := New(cfg, cats)
	if err != nil {
		return nil, err
	}

	if len(snap.Segments) > 0 && len(snap.Nodes) == 0 {
		return nil, fmt.Errorf("%w: capture has segments but no node table", ErrStaleState)
	}
	nodePos := make([]Vec2, len(snap.Nodes))
	for i, nv := range snap.Nodes {
		nodePos[i] = Vec2{nv.Pos[0], nv.Pos[1]}
	}
	w.store.restoreNodes(nodePos)
	for _, sv := range snap.Segments {
		class, ok := cats.Roads.Index[sv.Class]
		if !ok {
			return nil, fmt.Errorf("%w: unknown road class %q", ErrStaleState, sv.Class)
		}
		c := Curve{
			P0: Vec2{sv.Control[0][0], sv.Control[0][1]},
			P1: Vec2{sv.Control[1][0], sv.Control[1][1]},
			P2: Vec2{sv.Control[2][0], sv.Control[2][1]},
			P3: Vec2{sv.Control[3][0], sv.Control[3][1]},
		}
		if err := w.store.addRestored(SegmentID(sv.ID), c, class, NodeID(sv.A), NodeID(sv.B)); err != nil {
			return nil, err
		}
	}
	if snap.Counters.NextSegment > uint32(w.store.nextID) {
		w.store.nextID = SegmentID(snap.Counters.NextSegment)
	}
	if snap.Counters.StoreGeneration > w.store.generation {
		w.store.generation = snap.Counters.StoreGeneration
	}

	if len(snap.Traffic) > 0 {
		if len(snap.Traffic) != len(w.traffic.load) {
			return nil, fmt.Errorf("%w: traffic field size %d, grid wants %d", ErrStaleState, len(snap.Traffic), len(w.traffic.load))
		}
		copy(w.traffic.load, snap.Traffic)
	}

	if len(snap.Districts) != len(w.vpop.Districts) {
		return nil, fmt.Errorf("%w: %d districts, tiling wants %d", ErrStaleState, len(snap.Districts), len(w.vpop.Districts))
	}
	for _, dv := range snap.Districts {
		if dv.ID < 0 || dv.ID >= len(w.vpop.Districts) || len(dv.Virtual) != int(BucketCount) {
			return nil, fmt.Errorf("%w: district %d malformed", ErrStaleState, dv.ID)
		}
		copy(w.vpop.Districts[dv.ID].Virtual[:], dv.Virtual)
	}

	for _, av := range snap.Agents {
		st, err := parseAgentState(av.State)
		if err != nil {
			return nil, err
		}
		a := &Agent{
			ID:            AgentID(av.ID),
			District:      av.District,
			Bucket:        av.Bucket,
			Profile:       av.Profile,
			Home:          CellPos{av.Home[0], av.Home[1]},
			Work:          CellPos{av.Work[0], av.Work[1]},
			Tier:          LodTier(av.Tier),
			State:         st,
			Returning:     av.Returning,
			Pos:           Vec2{av.Pos[0], av.Pos[1]},
			Cursor:        av.Cursor,
			Frac:          av.Frac,
			PathGen:       av.PathGen,
			WantsPath:     av.WantsPath,
			NeedsRepath:   av.NeedsRepath,
			DepartJitter:  av.DepartJitter,
			RetryAttempts: av.RetryAttempts,
			NextRetryTick: av.NextRetryTick,
			TryEpoch:      av.TryEpoch,
		}
		for _, wp := range av.Waypoints {
			a.Path = append(a.Path, CellPos{wp[0], wp[1]})
		}
		if a.State == AgentCommuting {
			if len(a.Path) == 0 || a.Cursor >= len(a.Path) || !w.pathStillValid(a) {
				a.Path = nil
				a.Cursor = 0
				a.Frac = 0
				a.NeedsRepath = true
			}
		}
		w.agents[a.ID] = a
	}
	w.nextAgentNum = snap.Counters.NextAgent

	w.viewpoint = Vec2{snap.Viewpoint[0], snap.Viewpoint[1]}
	w.ratios = SegmentRatios(w.store, w.traffic)
	// The capture holds post-step state of Header.Tick; resume on the next.
	w.tick.Store(snap.Header.Tick + 1)

	g, err := BuildGraph(w.store)
	if err != nil {
		return nil, err
	}
	w.graph.Store(g)
	return w, nil
}
