package world

import (
	"math"

	"cityflow.sim/internal/sim/world/logic/mathx"
)

type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellRoad
	CellWater
)

// Cell is one tile of the simulation grid. Road cells remember the class
// of the road covering them and the segment that most recently stamped
// them.
type Cell struct {
	Kind    CellKind
	Class   uint8
	Segment SegmentID
}

// CellGrid is the rasterized view of the road network. It is owned by the
// world goroutine; readers outside the loop go through snapshots.
type CellGrid struct {
	W        int
	H        int
	CellSize float64
	Cells    []Cell
}

func NewCellGrid(w, h int, cellSize float64) *CellGrid {
	return &CellGrid{
		W:        w,
		H:        h,
		CellSize: cellSize,
		Cells:    make([]Cell, w*h),
	}
}

// SeedWater carves blocked water regions from the world seed. Regions are
// fixed-size squares so the layout is stable for a given seed.
func (g *CellGrid) SeedWater(seed int64, regionSize, permille int) {
	if permille <= 0 {
		return
	}
	for y := 0; y < g.H; y++ {
		ry := mathx.FloorDiv(y, regionSize)
		for x := 0; x < g.W; x++ {
			rx := mathx.FloorDiv(x, regionSize)
			if int(mathx.Hash2(seed, rx, ry)%1000) < permille {
				g.Cells[y*g.W+x].Kind = CellWater
			}
		}
	}
}

func (g *CellGrid) InBounds(c CellPos) bool {
	return c.X >= 0 && c.X < g.W && c.Y >= 0 && c.Y < g.H
}

func (g *CellGrid) At(c CellPos) Cell {
	return g.Cells[c.Y*g.W+c.X]
}

func (g *CellGrid) set(c CellPos, v Cell) {
	g.Cells[c.Y*g.W+c.X] = v
}

func (g *CellGrid) IsRoad(c CellPos) bool {
	return g.InBounds(c) && g.At(c).Kind == CellRoad
}

// WorldToCell maps a world-space position to the cell containing it.
// Positions outside the grid are clamped onto the border.
func (g *CellGrid) WorldToCell(p Vec2) CellPos {
	c := CellPos{
		X: int(math.Floor(p.X / g.CellSize)),
		Y: int(math.Floor(p.Y / g.CellSize)),
	}
	if c.X < 0 {
		c.X = 0
	}
	if c.X >= g.W {
		c.X = g.W - 1
	}
	if c.Y < 0 {
		c.Y = 0
	}
	if c.Y >= g.H {
		c.Y = g.H - 1
	}
	return c
}

// CellCenter maps a cell back to its world-space center.
func (g *CellGrid) CellCenter(c CellPos) Vec2 {
	return Vec2{
		X: (float64(c.X) + 0.5) * g.CellSize,
		Y: (float64(c.Y) + 0.5) * g.CellSize,
	}
}
