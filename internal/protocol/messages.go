package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue    int  `json:"max_queue,omitempty"`
	StatsStream bool `json:"stats_stream,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz int     `json:"tick_rate_hz"`
	GridSize   [2]int  `json:"grid_size"`
	CellSize   float64 `json:"cell_size"`
	DayTicks   int     `json:"day_ticks"`
	Seed       int64   `json:"seed"`
}

type CatalogDigests struct {
	RoadClasses  DigestRef `json:"road_classes"`
	Profiles     DigestRef `json:"profiles"`
	TuningDigest string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// EDIT (client -> server): a validated road network mutation request.
// Exactly one of the op payloads is set, selected by Op.
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Op              string `json:"op"` // "PLACE_ROAD" | "REMOVE_ROAD" | "UPGRADE_ROAD"

	Place   *PlaceRoad   `json:"place,omitempty"`
	Remove  *RemoveRoad  `json:"remove,omitempty"`
	Upgrade *UpgradeRoad `json:"upgrade,omitempty"`
}

const (
	OpPlaceRoad   = "PLACE_ROAD"
	OpRemoveRoad  = "REMOVE_ROAD"
	OpUpgradeRoad = "UPGRADE_ROAD"
)

// PlaceRoad places a curved segment. If Control is nil the segment is
// straight (interior control points at thirds).
type PlaceRoad struct {
	From    [2]float64     `json:"from"`
	To      [2]float64     `json:"to"`
	Control *[2][2]float64 `json:"control,omitempty"`
	Class   string         `json:"class"`
}

type RemoveRoad struct {
	SegmentID uint32 `json:"segment_id"`
}

type UpgradeRoad struct {
	SegmentID uint32 `json:"segment_id"`
	Class     string `json:"class"`
}

// RESULT (server -> client): outcome of an EDIT.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	SegmentID       uint32 `json:"segment_id,omitempty"`
	ServerTick      uint64 `json:"server_tick"`
}

// QUERY (client -> server): read-only lookups. Preview path queries do not
// touch the traffic field.
type QueryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Kind            string `json:"kind"` // "PATH" | "CONGESTION"

	Path       *PathQuery       `json:"path,omitempty"`
	Congestion *CongestionQuery `json:"congestion,omitempty"`
}

const (
	QueryPath       = "PATH"
	QueryCongestion = "CONGESTION"
)

type PathQuery struct {
	From    [2]int `json:"from"`
	To      [2]int `json:"to"`
	Profile string `json:"profile,omitempty"`
}

type CongestionQuery struct {
	Cell [2]int `json:"cell"`
}

// PATH (server -> client): answer to a PATH or CONGESTION query.
type PathMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	AckFor          string   `json:"ack_for"`
	Accepted        bool     `json:"accepted"`
	Code            string   `json:"code,omitempty"`
	Waypoints       [][2]int `json:"waypoints,omitempty"`
	Cost            float64  `json:"cost,omitempty"`
	Degraded        bool     `json:"degraded,omitempty"`
	Congestion      float64  `json:"congestion,omitempty"`
	ServerTick      uint64   `json:"server_tick"`
}

// STATS (server -> client): per-tick aggregate stream for subscribed
// sessions (budget/economy collaborators, dashboards).
type StatsMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	RealAgents      int        `json:"real_agents"`
	VirtualTotal    uint64     `json:"virtual_total"`
	Commuting       int        `json:"commuting"`
	CommuteVolume   float64    `json:"commute_volume"`
	AvgCongestion   float64    `json:"avg_congestion"`
	Graph           GraphStats `json:"graph"`
}

type GraphStats struct {
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	Generation uint64 `json:"generation"`
	Fallback   bool   `json:"fallback"`
}
