package world

import (
	"encoding/json"
	"time"
)

// StepOnce advances the world exactly one tick with a pre-captured edit
// stream and returns the stepped tick and its post-tick state digest.
// The live server goes through Run; this entrypoint exists for the
// replay verifier and for tests. The caller owns the goroutine.
func (w *World) StepOnce(viewpoint Vec2, edits []RecordedEdit) (uint64, string) {
	w.viewpoint = viewpoint
	envs := make([]EditEnvelope, 0, len(edits))
	for _, re := range edits {
		envs = append(envs, EditEnvelope{SessionID: re.SessionID, Edit: re.Edit})
	}
	return w.stepInternal(nil, nil, envs)
}

func (w *World) stepInternal(joins []JoinRequest, leaves []string, edits []EditEnvelope) (uint64, string) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Apply leaves and joins deterministically at tick boundary.
	for _, id := range leaves {
		delete(w.clients, id)
	}
	for _, req := range joins {
		id := w.newSessionID()
		w.clients[id] = &clientState{Out: req.Out, Stats: req.Stats}
		wm := w.welcome()
		wm.SessionID = id
		if req.Resp != nil {
			req.Resp <- JoinResponse{Welcome: wm}
		}
	}

	// Apply edits in server receive order. Rejected edits are recorded
	// too: replaying the full stream reproduces the same rejections.
	recorded := make([]RecordedEdit, 0, len(edits))
	for _, env := range edits {
		res := w.applyEdit(env.Edit, nowTick)
		recorded = append(recorded, RecordedEdit{SessionID: env.SessionID, Edit: env.Edit})
		if env.Resp != nil {
			select {
			case env.Resp <- res:
			default:
			}
		}
	}
	w.maybeRebuildGraph()

	// Systems: movement -> virtual flow -> field update -> LOD.
	w.systemMovement(nowTick)
	w.systemVirtualFlow(nowTick)
	w.traffic.Apply(w.tun.TrafficDecay)
	w.ratios = SegmentRatios(w.store, w.traffic)
	if w.tun.LODRebalanceEveryTicks > 0 && nowTick%uint64(w.tun.LODRebalanceEveryTicks) == 0 {
		w.systemLOD(nowTick)
	}

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:      nowTick,
			Viewpoint: [2]float64{w.viewpoint.X, w.viewpoint.Y},
			Edits:     recorded,
			Digest:    digest,
		})
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		every := uint64(w.cfg.SnapshotEveryTicks)
		if nowTick%every == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	w.publishStats(nowTick)

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)

	g := w.graph.Load()
	w.metrics.Store(WorldMetrics{
		Tick:          nextTick,
		RealAgents:    len(w.agents),
		VirtualTotal:  w.vpop.TotalVirtual(),
		Commuting:     w.commutingCount(),
		Clients:       len(w.clients),
		Segments:      w.store.Len(),
		GraphNodes:    g.NodeCount(),
		GraphEdges:    g.EdgeCount(),
		GraphGen:      g.Generation,
		GraphFailures: w.graphFailures,
		AvgCongestion: w.avgCongestion(),
		CommuteVolume: w.commuteVolume,
		PathsServed:   w.pathsServed,
		PathsDeferred: w.pathsDeferred,
		PathsDegraded: w.pathsDegraded,
		QueueDepths: QueueDepths{
			Inbox:   len(w.inbox),
			Queries: len(w.queries),
			Join:    len(w.join),
			Leave:   len(w.leave),
		},
		StepMS: stepMS,
	})
	return nowTick, digest
}

// maybeRebuildGraph republishes the routing graph when edits changed the
// store. A build that fails validation keeps the previous graph live.
func (w *World) maybeRebuildGraph() {
	if w.graph.Load().Generation == w.store.Generation() {
		return
	}
	g, err := BuildGraph(w.store)
	if err != nil {
		w.graphFailures++
		return
	}
	w.graph.Store(g)
}

func (w *World) commutingCount() int {
	n := 0
	for _, a := range w.agents {
		if a.State == AgentCommuting {
			n++
		}
	}
	return n
}

func (w *World) avgCongestion() float64 {
	if len(w.ratios) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range w.ratios {
		sum += r
	}
	return sum / float64(len(w.ratios))
}

func (w *World) publishStats(nowTick uint64) {
	g := w.graph.Load()
	msg := protocolStats(w, g, nowTick)
	var b []byte
	for _, cl := range w.clients {
		if !cl.Stats {
			continue
		}
		if b == nil {
			var err error
			b, err = json.Marshal(msg)
			if err != nil {
				return
			}
		}
		sendLatest(cl.Out, b)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
