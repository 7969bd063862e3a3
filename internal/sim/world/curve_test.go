package world

import (
	"math"
	"testing"
)

func TestCurve_LineArcLengthMatchesChord(t *testing.T) {
	c := Line(Vec2{X: 0, Y: 0}, Vec2{X: 300, Y: 400})
	got := c.ArcLength()
	if math.Abs(got-500) > 1e-6 {
		t.Fatalf("straight arc length = %v, want 500", got)
	}
}

func TestCurve_EvalEndpoints(t *testing.T) {
	c := Curve{
		P0: Vec2{X: 10, Y: 20},
		P1: Vec2{X: 50, Y: 200},
		P2: Vec2{X: 300, Y: 200},
		P3: Vec2{X: 400, Y: 40},
	}
	if p := c.Eval(0); p != c.P0 {
		t.Fatalf("Eval(0) = %v, want %v", p, c.P0)
	}
	if p := c.Eval(1); p.Dist(c.P3) > 1e-9 {
		t.Fatalf("Eval(1) = %v, want %v", p, c.P3)
	}
}

func TestCurve_SampleUniformSpacing(t *testing.T) {
	// A bent curve where naive parameter sampling would bunch points.
	c := Curve{
		P0: Vec2{X: 0, Y: 0},
		P1: Vec2{X: 0, Y: 300},
		P2: Vec2{X: 400, Y: 300},
		P3: Vec2{X: 400, Y: 0},
	}
	pts := c.SampleUniform(17)
	if len(pts) != 17 {
		t.Fatalf("sample count = %d, want 17", len(pts))
	}
	if pts[0] != c.P0 || pts[16] != c.P3 {
		t.Fatalf("samples must include endpoints, got %v .. %v", pts[0], pts[16])
	}
	minD, maxD := math.Inf(1), 0.0
	for i := 1; i < len(pts); i++ {
		d := pts[i-1].Dist(pts[i])
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}
	if maxD/minD > 1.15 {
		t.Fatalf("uneven spacing: min %v max %v", minD, maxD)
	}
}

func TestCurve_ArcLengthIsStable(t *testing.T) {
	c := Curve{
		P0: Vec2{X: 3, Y: 7},
		P1: Vec2{X: 90, Y: 400},
		P2: Vec2{X: 210, Y: -40},
		P3: Vec2{X: 512, Y: 128},
	}
	if c.ArcLength() != c.ArcLength() {
		t.Fatalf("arc length must be bit-stable across calls")
	}
}
