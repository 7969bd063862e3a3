package world

import "sort"

type AgentID uint64

type AgentState uint8

const (
	AgentAtHome AgentState = iota
	AgentCommuting
	AgentAtWork
)

func (s AgentState) String() string {
	switch s {
	case AgentAtHome:
		return "AT_HOME"
	case AgentCommuting:
		return "COMMUTING"
	case AgentAtWork:
		return "AT_WORK"
	default:
		return "UNKNOWN"
	}
}

type LodTier uint8

const (
	TierFull LodTier = iota
	TierSimplified
)

// Agent is a materialized citizen. Citizens beyond the real-agent budget
// exist only as counts in district population buckets.
type Agent struct {
	ID       AgentID
	District int
	Bucket   uint8
	Profile  uint8
	Home     CellPos
	Work     CellPos
	Tier     LodTier

	State     AgentState
	Returning bool
	Pos       Vec2
	Path      []CellPos
	Cursor    int
	Frac      float64
	PathGen   uint64

	// Routing bookkeeping. WantsPath queues the agent for the per-tick
	// path budget; NeedsRepath marks a held path invalidated by an edit.
	WantsPath   bool
	NeedsRepath bool

	// DepartJitter spreads departures across the commute window so the
	// whole city does not request paths on the same tick.
	DepartJitter  int
	RetryAttempts int
	NextRetryTick uint64
	TryEpoch      uint64
}

// sortedAgents returns agent ids in ascending order. Every per-tick walk
// over agents goes through this so map order never leaks into outcomes.
func sortedAgents(m map[AgentID]*Agent) []AgentID {
	ids := make([]AgentID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
