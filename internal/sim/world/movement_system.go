package world

import (
	"cityflow.sim/internal/sim/world/logic/mathx"
)

// systemMovement runs the commute state machine for every real agent in id
// order. Path requests beyond the per-tick budget stay queued and are
// served on following ticks, still in id order, so the outcome depends
// only on state and never on wall time.
func (w *World) systemMovement(nowTick uint64) {
	w.commuteVolume = 0
	budget := w.tun.MaxPathsPerTick
	env := w.routeEnv()

	for _, id := range sortedAgents(w.agents) {
		a := w.agents[id]
		w.updateCommuteIntent(a, nowTick)

		if (a.WantsPath || a.NeedsRepath) && nowTick >= a.NextRetryTick {
			if budget > 0 {
				budget--
				w.servePath(a, nowTick, env)
			} else {
				w.pathsDeferred++
			}
		}

		if a.State == AgentCommuting && len(a.Path) > 0 {
			w.advanceAgent(a, nowTick)
		}
	}
}

// updateCommuteIntent flips agents into wanting a path when their commute
// window opens. DepartJitter staggers each agent's departure inside the
// window; retry attempts reset when a new window starts.
func (w *World) updateCommuteIntent(a *Agent, nowTick uint64) {
	if a.State == AgentCommuting || a.Home == a.Work {
		return
	}
	tod := w.clock.TickOfDay(nowTick)
	day := nowTick / uint64(w.cfg.DayTicks)

	var lo, hi int
	var epoch uint64
	switch {
	case a.State == AgentAtHome && w.clock.InMorning(nowTick, w.tun):
		lo, hi = w.clock.MorningWindow(w.tun)
		epoch = day * 2
	case a.State == AgentAtWork && w.clock.InEvening(nowTick, w.tun):
		lo, hi = w.clock.EveningWindow(w.tun)
		epoch = day*2 + 1
	default:
		return
	}

	if a.TryEpoch != epoch {
		a.TryEpoch = epoch
		a.RetryAttempts = 0
		a.NextRetryTick = 0
		a.WantsPath = false
	}
	if a.WantsPath || a.RetryAttempts >= w.tun.RepathMaxAttempts {
		return
	}
	window := hi - lo
	if window <= 0 {
		window = 1
	}
	if tod >= lo+a.DepartJitter%window {
		a.WantsPath = true
		a.Returning = a.State == AgentAtWork
	}
}

func (w *World) servePath(a *Agent, nowTick uint64, env *routeEnv) {
	origin, dest := a.Home, a.Work
	if a.Returning {
		origin, dest = a.Work, a.Home
	}
	if a.State == AgentCommuting {
		// Repath continues from wherever the agent stopped.
		origin = w.grid.WorldToCell(a.Pos)
	}

	from, okFrom := w.nearestRoadCell(origin, 4)
	to, okTo := w.nearestRoadCell(dest, 4)
	if !okFrom || !okTo {
		w.failPath(a, nowTick)
		return
	}
	p, err := env.FindPath(from, to, a.Profile)
	if err != nil {
		w.failPath(a, nowTick)
		return
	}

	a.State = AgentCommuting
	a.Path = p.Waypoints
	a.Cursor = 0
	a.Frac = 0
	a.PathGen = p.Generation
	a.Pos = w.grid.CellCenter(p.Waypoints[0])
	a.WantsPath = false
	a.NeedsRepath = false
	a.RetryAttempts = 0
	w.pathsServed++
	if p.Degraded {
		w.pathsDegraded++
	}
}

// failPath backs the agent off with a seeded jitter so a wall of agents
// blocked by the same missing road does not retry in lockstep.
func (w *World) failPath(a *Agent, nowTick uint64) {
	a.RetryAttempts++
	jitter := 0
	if w.tun.RepathBackoffJitter > 0 {
		jitter = int(mathx.Hash2(w.cfg.Seed, int(a.ID), int(nowTick)) % uint64(w.tun.RepathBackoffJitter))
	}
	a.NextRetryTick = nowTick + uint64(w.tun.RepathBackoffTicks+jitter)
	if a.RetryAttempts >= w.tun.RepathMaxAttempts {
		a.WantsPath = false
		a.NeedsRepath = false
		if a.State == AgentCommuting {
			// Strand resolution: walk home abstractly and try again next
			// window.
			a.State = AgentAtHome
			a.Returning = false
			a.Path = nil
			a.Pos = w.grid.CellCenter(a.Home)
		}
	}
}

func (w *World) advanceAgent(a *Agent, nowTick uint64) {
	// Simplified-tier agents tick on a cadence, moving proportionally
	// further to keep the same average speed.
	scale := 1.0
	if a.Tier == TierSimplified {
		cadence := uint64(w.tun.SimplifiedCadenceTicks)
		if cadence > 1 {
			if nowTick%cadence != uint64(a.ID)%cadence {
				return
			}
			scale = float64(cadence)
		}
	}

	// A network edit may have invalidated the held path.
	if a.PathGen != w.store.Generation() {
		if w.pathStillValid(a) {
			a.PathGen = w.store.Generation()
		} else {
			a.NeedsRepath = true
			return
		}
	}

	cur := a.Path[a.Cursor]
	cell := w.grid.At(cur)
	def, ok := w.cats.Roads.ClassByIndex(cell.Class)
	if !ok || cell.Kind != CellRoad {
		a.NeedsRepath = true
		return
	}
	prof, pok := w.cats.Profiles.ProfileByIndex(a.Profile)
	if !pok {
		return
	}

	ratio := w.cellCongestion(cur)
	speed := def.SpeedCellsPerTick * prof.SpeedMultiplier / (1 + CongestionPenalty(w.tun, ratio))
	remaining := a.Frac + speed*scale
	for a.Cursor < len(a.Path)-1 {
		d := a.Path[a.Cursor].Dist(a.Path[a.Cursor+1])
		if remaining < d {
			break
		}
		remaining -= d
		a.Cursor++
	}
	if a.Cursor >= len(a.Path)-1 {
		w.arrive(a)
		return
	}
	a.Frac = remaining
	a.Pos = w.grid.CellCenter(a.Path[a.Cursor])

	w.traffic.Deposit(a.Path[a.Cursor], float32(prof.Load))
	w.commuteVolume += prof.Load
}

func (w *World) arrive(a *Agent) {
	if a.Returning {
		a.State = AgentAtHome
		a.Pos = w.grid.CellCenter(a.Home)
	} else {
		a.State = AgentAtWork
		a.Pos = w.grid.CellCenter(a.Work)
	}
	a.Path = nil
	a.Cursor = 0
	a.Frac = 0
	a.WantsPath = false
	a.NeedsRepath = false
}

// pathStillValid checks that the rest of a held path still runs over road
// cells after an edit.
func (w *World) pathStillValid(a *Agent) bool {
	for i := a.Cursor; i < len(a.Path); i++ {
		if !w.grid.IsRoad(a.Path[i]) {
			return false
		}
	}
	return true
}

// nearestRoadCell scans outward in square rings. Ring cells are visited
// top-to-bottom, left-to-right so ties always resolve the same way.
func (w *World) nearestRoadCell(c CellPos, maxR int) (CellPos, bool) {
	if w.grid.IsRoad(c) {
		return c, true
	}
	for r := 1; r <= maxR; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if mathx.AbsInt(dx) != r && mathx.AbsInt(dy) != r {
					continue
				}
				p := CellPos{c.X + dx, c.Y + dy}
				if w.grid.IsRoad(p) {
					return p, true
				}
			}
		}
	}
	return CellPos{}, false
}
