package world

import (
	"math"

	"cityflow.sim/internal/sim/tuning"
)

// TrafficField tracks per-cell load. Deposits made during a tick are
// buffered and folded in at the tick boundary together with exponential
// decay, so readers within a tick always see the previous tick's field.
type TrafficField struct {
	w, h    int
	load    []float32
	pending []float32
}

func NewTrafficField(w, h int) *TrafficField {
	return &TrafficField{
		w:       w,
		h:       h,
		load:    make([]float32, w*h),
		pending: make([]float32, w*h),
	}
}

func (f *TrafficField) Deposit(c CellPos, amt float32) {
	if c.X < 0 || c.X >= f.w || c.Y < 0 || c.Y >= f.h {
		return
	}
	f.pending[c.Y*f.w+c.X] += amt
}

// Apply folds pending deposits into the field with decay. Values below a
// small floor are clamped to zero so the field settles instead of holding
// denormal dust forever.
func (f *TrafficField) Apply(decay float64) {
	d := float32(decay)
	for i := range f.load {
		v := f.load[i]*d + f.pending[i]
		if v < 1e-4 {
			v = 0
		}
		f.load[i] = v
		f.pending[i] = 0
	}
}

func (f *TrafficField) LoadAt(c CellPos) float32 {
	if c.X < 0 || c.X >= f.w || c.Y < 0 || c.Y >= f.h {
		return 0
	}
	return f.load[c.Y*f.w+c.X]
}

// SegmentRatios summarizes the field per segment as mean centerline load
// over class capacity. The router prices congestion per edge from this.
func SegmentRatios(s *SegmentStore, f *TrafficField) map[SegmentID]float64 {
	out := make(map[SegmentID]float64, s.Len())
	s.Each(func(seg *Segment) {
		if len(seg.Line) == 0 {
			out[seg.ID] = 0
			return
		}
		sum := 0.0
		for _, cell := range seg.Line {
			sum += float64(f.LoadAt(cell))
		}
		def, _ := s.cats.Roads.ClassByIndex(seg.Class)
		capacity := def.Capacity
		if capacity <= 0 {
			capacity = 1
		}
		out[seg.ID] = sum / float64(len(seg.Line)) / capacity
	})
	return out
}

// CongestionPenalty maps a load ratio to a travel-time multiplier minus
// one, using a capped volume-delay polynomial.
func CongestionPenalty(t *tuning.Tuning, ratio float64) float64 {
	if ratio <= 0 {
		return 0
	}
	p := t.CongestionAlpha * math.Pow(ratio, t.CongestionBeta)
	if p > t.CongestionCap {
		p = t.CongestionCap
	}
	return p
}
