package world

import (
	"math"
	"sort"
)

// rasterize walks a curve at a fixed sample spacing and returns the ordered
// centerline cells (consecutive duplicates removed) plus the full footprint
// widened by halfWidth cells on each side. The footprint is sorted row-major
// and deduplicated so stamping order never depends on sample noise.
func rasterize(g *CellGrid, c Curve, halfWidth int, sampleSpacing float64) (line []CellPos, cells []CellPos) {
	n := int(math.Ceil(c.ArcLength() / sampleSpacing))
	if n < 4 {
		n = 4
	}
	samples := c.SampleUniform(n + 1)

	line = make([]CellPos, 0, len(samples))
	seen := make(map[CellPos]struct{}, len(samples)*(2*halfWidth+1))
	for _, p := range samples {
		cell := g.WorldToCell(p)
		if len(line) == 0 || line[len(line)-1] != cell {
			line = append(line, cell)
		}
		for dy := -halfWidth; dy <= halfWidth; dy++ {
			for dx := -halfWidth; dx <= halfWidth; dx++ {
				w := CellPos{cell.X + dx, cell.Y + dy}
				if !g.InBounds(w) {
					continue
				}
				seen[w] = struct{}{}
			}
		}
	}

	cells = make([]CellPos, 0, len(seen))
	for c := range seen {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})
	return line, cells
}
