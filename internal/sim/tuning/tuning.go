package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	DayTicks           int `yaml:"day_ticks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	// Congestion penalty curve: min(alpha*(load/capacity)^beta, cap).
	CongestionAlpha float64 `yaml:"congestion_alpha"`
	CongestionBeta  float64 `yaml:"congestion_beta"`
	CongestionCap   float64 `yaml:"congestion_cap"`
	TrafficDecay    float64 `yaml:"traffic_decay"`

	// Geometry in world units.
	NodeSnapDistance    float64 `yaml:"node_snap_distance"`
	RasterSampleSpacing float64 `yaml:"raster_sample_spacing"`
	MinSegmentLength    float64 `yaml:"min_segment_length"`

	MorningStartHour int `yaml:"morning_start_hour"`
	MorningEndHour   int `yaml:"morning_end_hour"`
	EveningStartHour int `yaml:"evening_start_hour"`
	EveningEndHour   int `yaml:"evening_end_hour"`

	MaxPathsPerTick     int `yaml:"max_paths_per_tick"`
	RepathMaxAttempts   int `yaml:"repath_max_attempts"`
	RepathBackoffTicks  int `yaml:"repath_backoff_ticks"`
	RepathBackoffJitter int `yaml:"repath_backoff_jitter"`

	MaxRealAgents             int `yaml:"max_real_agents"`
	FullTierRadiusCells       int `yaml:"full_tier_radius_cells"`
	SimplifiedTierRadiusCells int `yaml:"simplified_tier_radius_cells"`
	SimplifiedCadenceTicks    int `yaml:"simplified_cadence_ticks"`
	LODRebalanceEveryTicks    int `yaml:"lod_rebalance_every_ticks"`

	DistrictSizeCells      int     `yaml:"district_size_cells"`
	VirtualFlowPerCommuter float64 `yaml:"virtual_flow_per_commuter"`

	RateLimits RateLimits `yaml:"rate_limits"`

	// Digest of the raw file bytes; empty for Defaults().
	Digest string `yaml:"-"`
}

type RateLimits struct {
	EditWindowTicks  int `yaml:"edit_window_ticks"`
	EditMax          int `yaml:"edit_max"`
	QueryWindowTicks int `yaml:"query_window_ticks"`
	QueryMax         int `yaml:"query_max"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	sum := sha256.Sum256(raw)
	t.Digest = hex.EncodeToString(sum[:])
	t.applyDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 10
	}
	if t.DayTicks <= 0 {
		t.DayTicks = 14400
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = 3000
	}
	if t.CongestionAlpha <= 0 {
		t.CongestionAlpha = 0.15
	}
	if t.CongestionBeta <= 0 {
		t.CongestionBeta = 4.0
	}
	if t.CongestionCap <= 0 {
		t.CongestionCap = 8.0
	}
	if t.TrafficDecay <= 0 || t.TrafficDecay >= 1 {
		t.TrafficDecay = 0.92
	}
	if t.NodeSnapDistance <= 0 {
		t.NodeSnapDistance = 24
	}
	if t.RasterSampleSpacing <= 0 {
		t.RasterSampleSpacing = 8
	}
	if t.MinSegmentLength <= 0 {
		t.MinSegmentLength = 8
	}
	if t.MorningStartHour <= 0 {
		t.MorningStartHour = 7
	}
	if t.MorningEndHour <= t.MorningStartHour {
		t.MorningEndHour = t.MorningStartHour + 2
	}
	if t.EveningStartHour <= t.MorningEndHour {
		t.EveningStartHour = 16
	}
	if t.EveningEndHour <= t.EveningStartHour {
		t.EveningEndHour = t.EveningStartHour + 3
	}
	if t.MaxPathsPerTick <= 0 {
		t.MaxPathsPerTick = 256
	}
	if t.RepathMaxAttempts <= 0 {
		t.RepathMaxAttempts = 4
	}
	if t.RepathBackoffTicks <= 0 {
		t.RepathBackoffTicks = 20
	}
	if t.RepathBackoffJitter <= 0 {
		t.RepathBackoffJitter = 40
	}
	if t.MaxRealAgents <= 0 {
		t.MaxRealAgents = 2000
	}
	if t.FullTierRadiusCells <= 0 {
		t.FullTierRadiusCells = 48
	}
	if t.SimplifiedTierRadiusCells <= t.FullTierRadiusCells {
		t.SimplifiedTierRadiusCells = t.FullTierRadiusCells + 80
	}
	if t.SimplifiedCadenceTicks <= 0 {
		t.SimplifiedCadenceTicks = 4
	}
	if t.LODRebalanceEveryTicks <= 0 {
		t.LODRebalanceEveryTicks = 10
	}
	if t.DistrictSizeCells <= 0 {
		t.DistrictSizeCells = 32
	}
	if t.VirtualFlowPerCommuter <= 0 {
		t.VirtualFlowPerCommuter = 0.25
	}
	if t.RateLimits.EditWindowTicks <= 0 {
		t.RateLimits.EditWindowTicks = 10
	}
	if t.RateLimits.EditMax <= 0 {
		t.RateLimits.EditMax = 64
	}
	if t.RateLimits.QueryWindowTicks <= 0 {
		t.RateLimits.QueryWindowTicks = 10
	}
	if t.RateLimits.QueryMax <= 0 {
		t.RateLimits.QueryMax = 128
	}
}
