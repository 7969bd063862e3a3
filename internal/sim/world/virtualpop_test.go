package world

import (
	"reflect"
	"testing"
)

func TestVirtualPop_SeedConservesTotal(t *testing.T) {
	vp := NewVirtualPopulation(64, 64, 32)
	if len(vp.Districts) != 4 {
		t.Fatalf("district count = %d, want 4", len(vp.Districts))
	}
	vp.Seed(7, 10000)
	if got := vp.TotalVirtual(); got != 10000 {
		t.Fatalf("total virtual = %d, want 10000", got)
	}

	// Same seed, same split.
	again := NewVirtualPopulation(64, 64, 32)
	again.Seed(7, 10000)
	if !reflect.DeepEqual(vp.Districts, again.Districts) {
		t.Fatalf("seeding must be deterministic")
	}

	other := NewVirtualPopulation(64, 64, 32)
	other.Seed(8, 10000)
	if other.TotalVirtual() != 10000 {
		t.Fatalf("total must hold for any seed")
	}
}

func TestVirtualPop_DistrictOf(t *testing.T) {
	vp := NewVirtualPopulation(64, 64, 32)
	cases := []struct {
		cell CellPos
		want int
	}{
		{CellPos{X: 0, Y: 0}, 0},
		{CellPos{X: 31, Y: 31}, 0},
		{CellPos{X: 32, Y: 0}, 1},
		{CellPos{X: 0, Y: 32}, 2},
		{CellPos{X: 63, Y: 63}, 3},
	}
	for _, tc := range cases {
		if got := vp.DistrictOf(tc.cell); got != tc.want {
			t.Fatalf("DistrictOf(%v) = %d, want %d", tc.cell, got, tc.want)
		}
	}
}

func TestVirtualPop_MaterializeRoundTrip(t *testing.T) {
	vp := NewVirtualPopulation(64, 64, 32)
	vp.Seed(3, 4000)

	di, bucket := -1, uint8(0)
	for i := range vp.Districts {
		if vp.Districts[i].Virtual[BucketWorkers] > 0 {
			di = i
			bucket = BucketWorkers
			break
		}
	}
	if di < 0 {
		t.Fatalf("no district with workers")
	}

	before := vp.TotalVirtual()
	if err := vp.Materialize(di, bucket); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if vp.TotalVirtual() != before-1 {
		t.Fatalf("materialize must remove exactly one citizen")
	}
	vp.Dematerialize(di, bucket)
	if vp.TotalVirtual() != before {
		t.Fatalf("dematerialize must restore the citizen")
	}

	empty := NewVirtualPopulation(64, 64, 32)
	if err := empty.Materialize(0, BucketWorkers); err == nil {
		t.Fatalf("materializing from an empty bucket must fail")
	}
}
