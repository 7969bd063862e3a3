package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// stateDigest hashes every piece of simulation state that affects future
// ticks. Two worlds with equal digests at tick N and equal inputs stay
// equal forever; the digest lands in the tick log so replays can prove it.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	w.digestHeader(h, &tmp, nowTick)
	w.digestGrid(h, &tmp)
	w.digestSegments(h, &tmp)
	w.digestGraph(h, &tmp)
	w.digestTraffic(h, &tmp)
	w.digestAgents(h, &tmp)
	w.digestDistricts(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func (w *World) digestHeader(h hashWriter, tmp *[8]byte, nowTick uint64) {
	digestWriteU64(h, tmp, nowTick)
	digestWriteI64(h, tmp, w.cfg.Seed)
	digestWriteU64(h, tmp, w.store.Generation())
	digestWriteU64(h, tmp, w.nextAgentNum)
	digestWriteU64(h, tmp, uint64(w.store.nextID))
	digestWriteF64(h, tmp, w.viewpoint.X)
	digestWriteF64(h, tmp, w.viewpoint.Y)
}

func (w *World) digestGrid(h hashWriter, tmp *[8]byte) {
	for i := range w.grid.Cells {
		c := &w.grid.Cells[i]
		h.Write([]byte{byte(c.Kind), c.Class})
		digestWriteU64(h, tmp, uint64(c.Segment))
	}
}

func (w *World) digestSegments(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(w.store.Len()))
	w.store.Each(func(seg *Segment) {
		digestWriteU64(h, tmp, uint64(seg.ID))
		h.Write([]byte{seg.Class})
		for _, p := range [...]Vec2{seg.Curve.P0, seg.Curve.P1, seg.Curve.P2, seg.Curve.P3} {
			digestWriteF64(h, tmp, p.X)
			digestWriteF64(h, tmp, p.Y)
		}
		digestWriteU64(h, tmp, uint64(seg.A))
		digestWriteU64(h, tmp, uint64(seg.B))
	})
}

func (w *World) digestGraph(h hashWriter, tmp *[8]byte) {
	g := w.graph.Load()
	digestWriteU64(h, tmp, g.Generation)
	digestWriteU64(h, tmp, uint64(g.NodeCount()))
	digestWriteU64(h, tmp, uint64(g.EdgeCount()))
	for _, off := range g.RowOffsets {
		digestWriteU64(h, tmp, uint64(off))
	}
	for i, col := range g.Cols {
		digestWriteU64(h, tmp, uint64(col))
		digestWriteU64(h, tmp, uint64(g.EdgeSeg[i]))
		digestWriteF64(h, tmp, g.Weights[i])
	}
}

func (w *World) digestTraffic(h hashWriter, tmp *[8]byte) {
	for _, v := range w.traffic.load {
		digestWriteU64(h, tmp, uint64(math.Float32bits(v)))
	}
}

func (w *World) digestAgents(h hashWriter, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(w.agents)))
	for _, id := range sortedAgents(w.agents) {
		a := w.agents[id]
		digestWriteU64(h, tmp, uint64(a.ID))
		digestWriteU64(h, tmp, uint64(a.District))
		h.Write([]byte{a.Bucket, a.Profile, byte(a.Tier), byte(a.State), boolByte(a.Returning), boolByte(a.WantsPath), boolByte(a.NeedsRepath)})
		digestWriteI64(h, tmp, int64(a.Home.X))
		digestWriteI64(h, tmp, int64(a.Home.Y))
		digestWriteI64(h, tmp, int64(a.Work.X))
		digestWriteI64(h, tmp, int64(a.Work.Y))
		digestWriteF64(h, tmp, a.Pos.X)
		digestWriteF64(h, tmp, a.Pos.Y)
		digestWriteU64(h, tmp, uint64(len(a.Path)))
		for _, c := range a.Path {
			digestWriteI64(h, tmp, int64(c.X))
			digestWriteI64(h, tmp, int64(c.Y))
		}
		digestWriteU64(h, tmp, uint64(a.Cursor))
		digestWriteF64(h, tmp, a.Frac)
		digestWriteU64(h, tmp, a.PathGen)
		digestWriteI64(h, tmp, int64(a.DepartJitter))
		digestWriteU64(h, tmp, uint64(a.RetryAttempts))
		digestWriteU64(h, tmp, a.NextRetryTick)
		digestWriteU64(h, tmp, a.TryEpoch)
	}
}

func (w *World) digestDistricts(h hashWriter, tmp *[8]byte) {
	for i := range w.vpop.Districts {
		d := &w.vpop.Districts[i]
		for _, v := range d.Virtual {
			digestWriteU64(h, tmp, uint64(v))
		}
	}
}
