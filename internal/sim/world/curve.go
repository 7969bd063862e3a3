package world

// Curve is a cubic Bézier in world units. Straight roads are encoded as a
// degenerate cubic with control points on the chord.
type Curve struct {
	P0 Vec2
	P1 Vec2
	P2 Vec2
	P3 Vec2
}

const (
	arcLengthSteps  = 64
	uniformLUTSteps = 128
)

// Line builds a degenerate cubic whose evaluation stays on the segment
// from a to b.
func Line(a, b Vec2) Curve {
	return Curve{
		P0: a,
		P1: a.Lerp(b, 1.0/3.0),
		P2: a.Lerp(b, 2.0/3.0),
		P3: b,
	}
}

func (c Curve) Eval(t float64) Vec2 {
	u := 1 - t
	uu := u * u
	tt := t * t
	p := c.P0.Scale(uu * u)
	p = p.Add(c.P1.Scale(3 * uu * t))
	p = p.Add(c.P2.Scale(3 * u * tt))
	p = p.Add(c.P3.Scale(tt * t))
	return p
}

// Tangent is the (unnormalized) derivative at t.
func (c Curve) Tangent(t float64) Vec2 {
	u := 1 - t
	d := c.P1.Sub(c.P0).Scale(3 * u * u)
	d = d.Add(c.P2.Sub(c.P1).Scale(6 * u * t))
	d = d.Add(c.P3.Sub(c.P2).Scale(3 * t * t))
	return d
}

// ArcLength approximates the curve length with a fixed-step polyline.
// The step count is fixed so the result is identical across runs.
func (c Curve) ArcLength() float64 {
	total := 0.0
	prev := c.P0
	for i := 1; i <= arcLengthSteps; i++ {
		t := float64(i) / arcLengthSteps
		p := c.Eval(t)
		total += prev.Dist(p)
		prev = p
	}
	return total
}

// SampleUniform returns n points spaced uniformly by arc length, endpoints
// included. It uses a fixed-resolution length table so parameterization
// speed does not bunch samples.
func (c Curve) SampleUniform(n int) []Vec2 {
	if n < 2 {
		n = 2
	}
	// Cumulative length table over uniform t.
	lut := make([]float64, uniformLUTSteps+1)
	prev := c.P0
	for i := 1; i <= uniformLUTSteps; i++ {
		p := c.Eval(float64(i) / uniformLUTSteps)
		lut[i] = lut[i-1] + prev.Dist(p)
		prev = p
	}
	total := lut[uniformLUTSteps]
	out := make([]Vec2, n)
	out[0] = c.P0
	out[n-1] = c.P3
	if total <= 0 {
		for i := 1; i < n-1; i++ {
			out[i] = c.P0
		}
		return out
	}
	j := 0
	for i := 1; i < n-1; i++ {
		target := total * float64(i) / float64(n-1)
		for j < uniformLUTSteps && lut[j+1] < target {
			j++
		}
		span := lut[j+1] - lut[j]
		frac := 0.0
		if span > 0 {
			frac = (target - lut[j]) / span
		}
		t := (float64(j) + frac) / uniformLUTSteps
		out[i] = c.Eval(t)
	}
	return out
}
