package world

import (
	"cityflow.sim/internal/sim/catalogs"
	"cityflow.sim/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	Seed       int64
	TickRateHz int
	DayTicks   int

	// Grid geometry.
	GridWidth  int
	GridHeight int
	CellSize   float64

	// Terrain tuning (pure 2D tilemap). Water regions are carved from the
	// seed before any road exists.
	WaterRegionSize int
	WaterPermille   int

	// Population.
	TotalPopulation uint64

	// Operational parameters. These are included in snapshots for
	// deterministic replay/resume.
	SnapshotEveryTicks int

	Tuning   *tuning.Tuning
	Catalogs *catalogs.Catalogs
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "default"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 10
	}
	if c.DayTicks <= 0 {
		c.DayTicks = 14400
	}
	if c.GridWidth <= 0 {
		c.GridWidth = 256
	}
	if c.GridHeight <= 0 {
		c.GridHeight = 256
	}
	if c.CellSize <= 0 {
		c.CellSize = 16
	}
	if c.WaterRegionSize <= 0 {
		c.WaterRegionSize = 8
	}
	if c.WaterPermille < 0 {
		c.WaterPermille = 0
	}
	if c.TotalPopulation == 0 {
		c.TotalPopulation = 50000
	}
	if c.SnapshotEveryTicks <= 0 {
		c.SnapshotEveryTicks = 3000
	}
	if c.Tuning == nil {
		t := tuning.Defaults()
		c.Tuning = &t
	}
}
