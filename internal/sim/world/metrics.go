package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	RealAgents   int    `json:"real_agents"`
	VirtualTotal uint64 `json:"virtual_total"`
	Commuting    int    `json:"commuting"`
	Clients      int    `json:"clients"`

	Segments      int    `json:"segments"`
	GraphNodes    int    `json:"graph_nodes"`
	GraphEdges    int    `json:"graph_edges"`
	GraphGen      uint64 `json:"graph_generation"`
	GraphFailures uint64 `json:"graph_failures"`

	AvgCongestion float64 `json:"avg_congestion"`
	CommuteVolume float64 `json:"commute_volume"`

	PathsServed   uint64 `json:"paths_served"`
	PathsDeferred uint64 `json:"paths_deferred"`
	PathsDegraded uint64 `json:"paths_degraded"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox   int `json:"inbox"`
	Queries int `json:"queries"`
	Join    int `json:"join"`
	Leave   int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
