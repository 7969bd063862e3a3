package world

import (
	"sort"

	"cityflow.sim/internal/sim/world/logic/mathx"
)

// districtRoadCells lists a district's road cells in row-major order. The
// cache follows the store generation.
func (w *World) districtRoadCells(district int) []CellPos {
	if w.districtRoadsGen != w.store.Generation() {
		w.districtRoads = make(map[int][]CellPos)
		w.districtRoadsGen = w.store.Generation()
	}
	if cells, ok := w.districtRoads[district]; ok {
		return cells
	}
	d := &w.vpop.Districts[district]
	var cells []CellPos
	for y := d.Origin.Y; y < d.Origin.Y+d.Size && y < w.grid.H; y++ {
		for x := d.Origin.X; x < d.Origin.X+d.Size && x < w.grid.W; x++ {
			c := CellPos{x, y}
			if w.grid.IsRoad(c) {
				cells = append(cells, c)
			}
		}
	}
	w.districtRoads[district] = cells
	return cells
}

// systemVirtualFlow deposits the modeled load of abstract commuters onto
// their district's roads during commute windows. Conservation is bucket
// counts only; no citizens move here.
func (w *World) systemVirtualFlow(nowTick uint64) {
	if !w.clock.InMorning(nowTick, w.tun) && !w.clock.InEvening(nowTick, w.tun) {
		return
	}
	for i := range w.vpop.Districts {
		workers := w.vpop.Districts[i].Virtual[BucketWorkers]
		if workers == 0 {
			continue
		}
		cells := w.districtRoadCells(i)
		if len(cells) == 0 {
			continue
		}
		perCell := float64(workers) * w.tun.VirtualFlowPerCommuter / float64(len(cells))
		for _, c := range cells {
			w.traffic.Deposit(c, float32(perCell))
		}
		w.commuteVolume += float64(workers) * w.tun.VirtualFlowPerCommuter
	}
}

// systemLOD rebalances the real/virtual split around the viewpoint.
// Far agents dematerialize back into their district buckets; nearby
// districts materialize citizens while the real-agent budget has room.
func (w *World) systemLOD(nowTick uint64) {
	vpCell := w.grid.WorldToCell(w.viewpoint)

	// Retier and demote. Commuting agents keep their tier until arrival
	// so trips are never cut mid-road.
	for _, id := range sortedAgents(w.agents) {
		a := w.agents[id]
		dist := vpCell.Dist(w.grid.WorldToCell(a.Pos))
		switch {
		case dist <= float64(w.tun.FullTierRadiusCells):
			a.Tier = TierFull
		case dist <= float64(w.tun.SimplifiedTierRadiusCells):
			a.Tier = TierSimplified
		default:
			if a.State == AgentCommuting {
				a.Tier = TierSimplified
				continue
			}
			w.vpop.Dematerialize(a.District, a.Bucket)
			delete(w.agents, id)
		}
	}

	// Promote from the nearest districts first.
	order := make([]int, len(w.vpop.Districts))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		di := vpCell.Dist(w.vpop.Districts[order[i]].Center())
		dj := vpCell.Dist(w.vpop.Districts[order[j]].Center())
		if di != dj {
			return di < dj
		}
		return order[i] < order[j]
	})
	for _, di := range order {
		if len(w.agents) >= w.tun.MaxRealAgents {
			return
		}
		dist := vpCell.Dist(w.vpop.Districts[di].Center())
		if dist > float64(w.tun.SimplifiedTierRadiusCells) {
			return
		}
		for bucket := uint8(0); bucket < BucketCount; bucket++ {
			for w.vpop.Districts[di].Virtual[bucket] > 0 && len(w.agents) < w.tun.MaxRealAgents {
				w.materializeAgent(di, bucket, dist)
			}
		}
	}
}

func (w *World) materializeAgent(district int, bucket uint8, distToView float64) {
	w.nextAgentNum++
	id := AgentID(w.nextAgentNum)
	_ = w.vpop.Materialize(district, bucket)

	home := w.pickDistrictCell(district, uint64(id))
	work := home
	if wd, ok := w.pickWorkDistrict(district, uint64(id)); ok {
		work = w.pickDistrictCell(wd, uint64(id)^0xa5a5)
	}

	tier := TierSimplified
	if distToView <= float64(w.tun.FullTierRadiusCells) {
		tier = TierFull
	}
	window := 1
	if lo, hi := w.clock.MorningWindow(w.tun); hi > lo {
		window = hi - lo
	}
	a := &Agent{
		ID:           id,
		District:     district,
		Bucket:       bucket,
		Profile:      uint8(mathx.Hash2(w.cfg.Seed, int(id), 0x70) % uint64(len(w.cats.Profiles.Palette))),
		Home:         home,
		Work:         work,
		Tier:         tier,
		State:        AgentAtHome,
		Pos:          w.grid.CellCenter(home),
		DepartJitter: int(mathx.Hash2(w.cfg.Seed, int(id), 0x6a) % uint64(window)),
	}
	w.agents[id] = a
}

// pickDistrictCell probes seeded hashes for a road-adjacent cell in the
// district, settling for any in-district cell when the district has no
// roads yet.
func (w *World) pickDistrictCell(district int, salt uint64) CellPos {
	d := &w.vpop.Districts[district]
	roads := w.districtRoadCells(district)
	if len(roads) > 0 {
		return roads[mathx.Hash3(w.cfg.Seed, district, int(salt), 0x72)%uint64(len(roads))]
	}
	for probe := 0; probe < 8; probe++ {
		x := d.Origin.X + int(mathx.Hash3(w.cfg.Seed, district, int(salt), probe)%uint64(d.Size))
		y := d.Origin.Y + int(mathx.Hash3(w.cfg.Seed, district, int(salt), probe+100)%uint64(d.Size))
		c := CellPos{x, y}
		if w.grid.InBounds(c) && w.grid.At(c).Kind != CellWater {
			return c
		}
	}
	return d.Center()
}

// pickWorkDistrict routes workers to some other district with roads.
func (w *World) pickWorkDistrict(home int, salt uint64) (int, bool) {
	var candidates []int
	for i := range w.vpop.Districts {
		if i != home && len(w.districtRoadCells(i)) > 0 {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[mathx.Hash2(w.cfg.Seed, home, int(salt))%uint64(len(candidates))], true
}
