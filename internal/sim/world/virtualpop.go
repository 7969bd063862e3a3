package world

import (
	"fmt"

	"cityflow.sim/internal/sim/world/logic/mathx"
)

// seedDomainPopulation separates the population stream from any other
// consumer of the world seed.
const seedDomainPopulation uint64 = 0x706f70 // "pop"

const (
	BucketWorkers uint8 = iota
	BucketStudents
	BucketRetirees
	BucketCount
)

// District is one fixed tile of the city. Virtual holds citizens that are
// not materialized as real agents, split by population bucket.
type District struct {
	ID      int
	Origin  CellPos
	Size    int
	Virtual [BucketCount]uint32
}

func (d *District) Center() CellPos {
	return CellPos{d.Origin.X + d.Size/2, d.Origin.Y + d.Size/2}
}

func (d *District) VirtualTotal() uint64 {
	var t uint64
	for _, v := range d.Virtual {
		t += uint64(v)
	}
	return t
}

// VirtualPopulation tiles the grid into districts and tracks the abstract
// tier of the population. Citizens move between here and the real agent
// map, never in or out of existence: total virtual plus real agents is
// constant once seeded.
type VirtualPopulation struct {
	Cols      int
	Rows      int
	SizeCells int
	Districts []District
}

func NewVirtualPopulation(gridW, gridH, sizeCells int) *VirtualPopulation {
	cols := (gridW + sizeCells - 1) / sizeCells
	rows := (gridH + sizeCells - 1) / sizeCells
	vp := &VirtualPopulation{
		Cols:      cols,
		Rows:      rows,
		SizeCells: sizeCells,
		Districts: make([]District, cols*rows),
	}
	for i := range vp.Districts {
		vp.Districts[i] = District{
			ID:     i,
			Origin: CellPos{(i % cols) * sizeCells, (i / cols) * sizeCells},
			Size:   sizeCells,
		}
	}
	return vp
}

// Seed distributes the initial population across districts using a seeded
// weight stream, then splits each district into buckets. Integer remainders
// land in the workers bucket so nothing is lost to rounding. Districts are
// walked in index order, so the stream draw per district is fixed.
func (vp *VirtualPopulation) Seed(seed int64, total uint64) {
	rng := mathx.NewStream(seed, seedDomainPopulation)
	weights := make([]uint64, len(vp.Districts))
	var sum uint64
	for i := range vp.Districts {
		weights[i] = 1 + uint64(rng.NextN(100))
		sum += weights[i]
	}
	var assigned uint64
	for i := range vp.Districts {
		share := total * weights[i] / sum
		if i == len(vp.Districts)-1 {
			share = total - assigned
		}
		assigned += share
		d := &vp.Districts[i]
		students := uint32(share * 25 / 100)
		retirees := uint32(share * 15 / 100)
		d.Virtual[BucketStudents] = students
		d.Virtual[BucketRetirees] = retirees
		d.Virtual[BucketWorkers] = uint32(share) - students - retirees
	}
}

func (vp *VirtualPopulation) DistrictOf(c CellPos) int {
	dx := c.X / vp.SizeCells
	dy := c.Y / vp.SizeCells
	if dx < 0 {
		dx = 0
	}
	if dx >= vp.Cols {
		dx = vp.Cols - 1
	}
	if dy < 0 {
		dy = 0
	}
	if dy >= vp.Rows {
		dy = vp.Rows - 1
	}
	return dy*vp.Cols + dx
}

func (vp *VirtualPopulation) TotalVirtual() uint64 {
	var t uint64
	for i := range vp.Districts {
		t += vp.Districts[i].VirtualTotal()
	}
	return t
}

// Materialize removes one citizen from a district bucket so it can become
// a real agent.
func (vp *VirtualPopulation) Materialize(district int, bucket uint8) error {
	if district < 0 || district >= len(vp.Districts) || bucket >= BucketCount {
		return fmt.Errorf("%w: district %d bucket %d", ErrNotFound, district, bucket)
	}
	d := &vp.Districts[district]
	if d.Virtual[bucket] == 0 {
		return fmt.Errorf("%w: empty bucket", ErrNotFound)
	}
	d.Virtual[bucket]--
	return nil
}

// Dematerialize returns a real agent's citizen to its home district
// bucket.
func (vp *VirtualPopulation) Dematerialize(district int, bucket uint8) {
	if district < 0 || district >= len(vp.Districts) || bucket >= BucketCount {
		return
	}
	vp.Districts[district].Virtual[bucket]++
}
