package world

import (
	"container/heap"
	"fmt"
	"math"

	"cityflow.sim/internal/sim/catalogs"
	"cityflow.sim/internal/sim/tuning"
)

// Path is a routed cell polyline. Cost is estimated traversal time in
// ticks at query-time congestion. Degraded paths came from the grid
// fallback rather than the routing graph.
type Path struct {
	Waypoints  []CellPos
	Cost       float64
	Degraded   bool
	Generation uint64
}

// routeEnv bundles the read-only state one routing query needs. The world
// goroutine assembles it per tick; tests assemble it by hand.
type routeEnv struct {
	grid    *CellGrid
	store   *SegmentStore
	graph   *CSRGraph
	traffic *TrafficField
	ratios  map[SegmentID]float64
	cats    *catalogs.Catalogs
	tun     *tuning.Tuning
}

func (e *routeEnv) profileMult(profile uint8) float64 {
	def, ok := e.cats.Profiles.ProfileByIndex(profile)
	if !ok {
		return 1
	}
	return def.SpeedMultiplier
}

// maxUnitsPerTick is the fastest possible world-unit speed for a profile,
// used as the admissible heuristic divisor.
func (e *routeEnv) maxUnitsPerTick(profile uint8) float64 {
	best := 0.0
	for i := range e.cats.Roads.Palette {
		def, _ := e.cats.Roads.ClassByIndex(uint8(i))
		if def.SpeedCellsPerTick > best {
			best = def.SpeedCellsPerTick
		}
	}
	if best <= 0 {
		best = 1
	}
	return best * e.grid.CellSize * e.profileMult(profile)
}

// edgeCost prices one directed edge for a profile at current congestion.
func (e *routeEnv) edgeCost(edge int, profile uint8) float64 {
	w := e.graph.Weights[edge] / e.profileMult(profile)
	return w * (1 + CongestionPenalty(e.tun, e.ratios[e.graph.EdgeSeg[edge]]))
}

func (e *routeEnv) segmentCost(seg *Segment, profile uint8) float64 {
	def, _ := e.cats.Roads.ClassByIndex(seg.Class)
	w := seg.ArcLength / (e.grid.CellSize * def.SpeedCellsPerTick * e.profileMult(profile))
	return w * (1 + CongestionPenalty(e.tun, e.ratios[seg.ID]))
}

// lineIndex finds the closest centerline cell to c. Footprint cells of wide
// roads are not on the centerline, so nearest-cell is the anchor.
func lineIndex(seg *Segment, c CellPos) int {
	best := 0
	bestDist := math.Inf(1)
	for i, cell := range seg.Line {
		d := cell.Dist(c)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// FindPath routes between two road cells. It prefers the routing graph and
// falls back to cell-by-cell search when the graph cannot serve the query.
func (e *routeEnv) FindPath(from, to CellPos, profile uint8) (Path, error) {
	if !e.grid.InBounds(from) || !e.grid.InBounds(to) {
		return Path{}, fmt.Errorf("%w: off grid", ErrInvalidEndpoint)
	}
	if !e.grid.IsRoad(from) || !e.grid.IsRoad(to) {
		return Path{}, fmt.Errorf("%w: not a road cell", ErrInvalidEndpoint)
	}
	if from == to {
		return Path{Waypoints: []CellPos{from}, Generation: e.store.Generation()}, nil
	}

	if p, err := e.findPathGraph(from, to, profile); err == nil {
		return p, nil
	}
	cells, cost, err := e.findPathGrid(from, to, profile)
	if err != nil {
		return Path{}, err
	}
	return Path{
		Waypoints:  cells,
		Cost:       cost,
		Degraded:   true,
		Generation: e.store.Generation(),
	}, nil
}

func (e *routeEnv) findPathGraph(from, to CellPos, profile uint8) (Path, error) {
	if e.graph == nil || e.graph.NodeCount() == 0 {
		return Path{}, ErrUnreachable
	}
	fromSeg, ok := e.store.Get(e.grid.At(from).Segment)
	if !ok {
		return Path{}, ErrUnreachable
	}
	toSeg, ok := e.store.Get(e.grid.At(to).Segment)
	if !ok {
		return Path{}, ErrUnreachable
	}

	if fromSeg.ID == toSeg.ID {
		return e.sameSegmentPath(fromSeg, from, to, profile), nil
	}

	fromIdx := lineIndex(fromSeg, from)
	toIdx := lineIndex(toSeg, to)
	segCostFrom := e.segmentCost(fromSeg, profile)
	segCostTo := e.segmentCost(toSeg, profile)
	fromFrac := lineFrac(fromSeg, fromIdx)
	toFrac := lineFrac(toSeg, toIdx)

	// Seed both endpoints of the origin segment with the partial cost of
	// reaching them, and accept either endpoint of the goal segment with
	// its partial remainder added on.
	type goalEntry struct {
		node NodeID
		tail float64
	}
	starts := []struct {
		node NodeID
		head float64
	}{
		{fromSeg.A, segCostFrom * fromFrac},
		{fromSeg.B, segCostFrom * (1 - fromFrac)},
	}
	goals := []goalEntry{
		{toSeg.A, segCostTo * toFrac},
		{toSeg.B, segCostTo * (1 - toFrac)},
	}

	g := e.graph
	n := g.NodeCount()
	if int(fromSeg.A) >= n || int(fromSeg.B) >= n || int(toSeg.A) >= n || int(toSeg.B) >= n {
		// Graph predates these segments; the caller falls back.
		return Path{}, ErrUnreachable
	}

	goalPos := e.grid.CellCenter(to)
	hDiv := e.maxUnitsPerTick(profile)
	hOf := func(node NodeID) float64 {
		return g.NodePos[node].Dist(goalPos) / hDiv
	}

	dist := make([]float64, n)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	cameNode := make([]int32, n)
	cameEdge := make([]int32, n)
	for i := range cameNode {
		cameNode[i] = -1
		cameEdge[i] = -1
	}
	closed := make([]bool, n)

	pq := &nodeHeap{}
	heap.Init(pq)
	for _, st := range starts {
		if st.head < dist[st.node] {
			dist[st.node] = st.head
			heap.Push(pq, pqItem{node: st.node, f: st.head + hOf(st.node), g: st.head})
		}
	}

	bestGoal := NodeID(0)
	bestTotal := math.Inf(1)
	found := false
	for pq.Len() > 0 {
		it := heap.Pop(pq).(pqItem)
		if closed[it.node] || it.g > dist[it.node] {
			continue
		}
		closed[it.node] = true
		for _, ge := range goals {
			if ge.node == it.node {
				total := it.g + ge.tail
				if !found || total < bestTotal {
					found = true
					bestGoal = it.node
					bestTotal = total
				}
			}
		}
		if found && it.g >= bestTotal {
			break
		}
		for ei := g.RowOffsets[it.node]; ei < g.RowOffsets[it.node+1]; ei++ {
			next := NodeID(g.Cols[ei])
			ng := it.g + e.edgeCost(int(ei), profile)
			if ng < dist[next] {
				dist[next] = ng
				cameNode[next] = int32(it.node)
				cameEdge[next] = int32(ei)
				heap.Push(pq, pqItem{node: next, f: ng + hOf(next), g: ng})
			}
		}
	}
	if !found {
		return Path{}, ErrUnreachable
	}

	// Node sequence from a start back to the chosen goal node.
	var edges []int32
	cur := bestGoal
	for cameEdge[cur] >= 0 {
		edges = append(edges, cameEdge[cur])
		cur = NodeID(cameNode[cur])
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	startNode := cur

	way := make([]CellPos, 0, 64)
	way = appendLinePartial(way, fromSeg, fromIdx, startNode == fromSeg.A)
	at := startNode
	for _, ei := range edges {
		seg, _ := e.store.Get(g.EdgeSeg[ei])
		nextNode := NodeID(g.Cols[ei])
		way = appendLineFull(way, seg, at == seg.A)
		at = nextNode
	}
	way = appendLineTail(way, toSeg, toIdx, bestGoal == toSeg.A)

	return Path{
		Waypoints:  way,
		Cost:       bestTotal,
		Generation: e.store.Generation(),
	}, nil
}

func lineFrac(seg *Segment, idx int) float64 {
	if len(seg.Line) <= 1 {
		return 0
	}
	return float64(idx) / float64(len(seg.Line)-1)
}

// appendLinePartial walks from a centerline index out to one end of the
// segment: toward A means down-line, toward B means up-line.
func appendLinePartial(dst []CellPos, seg *Segment, idx int, towardA bool) []CellPos {
	if towardA {
		for i := idx; i >= 0; i-- {
			dst = appendCell(dst, seg.Line[i])
		}
	} else {
		for i := idx; i < len(seg.Line); i++ {
			dst = appendCell(dst, seg.Line[i])
		}
	}
	return dst
}

// appendLineTail walks from one end of the goal segment in to the
// centerline index nearest the goal cell.
func appendLineTail(dst []CellPos, seg *Segment, idx int, fromA bool) []CellPos {
	if fromA {
		for i := 0; i <= idx; i++ {
			dst = appendCell(dst, seg.Line[i])
		}
	} else {
		for i := len(seg.Line) - 1; i >= idx; i-- {
			dst = appendCell(dst, seg.Line[i])
		}
	}
	return dst
}

func appendLineFull(dst []CellPos, seg *Segment, forward bool) []CellPos {
	if forward {
		for _, c := range seg.Line {
			dst = appendCell(dst, c)
		}
	} else {
		for i := len(seg.Line) - 1; i >= 0; i-- {
			dst = appendCell(dst, seg.Line[i])
		}
	}
	return dst
}

func appendCell(dst []CellPos, c CellPos) []CellPos {
	if len(dst) > 0 && dst[len(dst)-1] == c {
		return dst
	}
	return append(dst, c)
}

func (e *routeEnv) sameSegmentPath(seg *Segment, from, to CellPos, profile uint8) Path {
	i := lineIndex(seg, from)
	j := lineIndex(seg, to)
	way := make([]CellPos, 0, mathAbs(j-i)+1)
	if i <= j {
		for k := i; k <= j; k++ {
			way = appendCell(way, seg.Line[k])
		}
	} else {
		for k := i; k >= j; k-- {
			way = appendCell(way, seg.Line[k])
		}
	}
	frac := math.Abs(lineFrac(seg, j) - lineFrac(seg, i))
	return Path{
		Waypoints:  way,
		Cost:       e.segmentCost(seg, profile) * frac,
		Generation: e.store.Generation(),
	}
}

func mathAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// findPathGrid is the cell-level fallback: A* over road cells with
// 8-connected moves. It serves queries the graph cannot, at the price of
// jagged paths and a bigger search frontier.
func (e *routeEnv) findPathGrid(from, to CellPos, profile uint8) ([]CellPos, float64, error) {
	w, h := e.grid.W, e.grid.H
	idx := func(c CellPos) int { return c.Y*w + c.X }

	dist := make([]float64, w*h)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	came := make([]int32, w*h)
	for i := range came {
		came[i] = -1
	}
	closed := make([]bool, w*h)

	mult := e.profileMult(profile)
	goalPos := e.grid.CellCenter(to)
	hDiv := e.maxUnitsPerTick(profile) / e.grid.CellSize // cells per tick
	hOf := func(c CellPos) float64 {
		return e.grid.CellCenter(c).Dist(goalPos) / e.grid.CellSize / hDiv
	}

	cellCost := func(c CellPos, stepDist float64) float64 {
		cell := e.grid.At(c)
		def, ok := e.cats.Roads.ClassByIndex(cell.Class)
		if !ok {
			return math.Inf(1)
		}
		speed := def.SpeedCellsPerTick * mult
		ratio := 0.0
		if e.traffic != nil && def.Capacity > 0 {
			ratio = float64(e.traffic.LoadAt(c)) / def.Capacity
		}
		return stepDist / speed * (1 + CongestionPenalty(e.tun, ratio))
	}

	pq := &cellHeap{}
	heap.Init(pq)
	dist[idx(from)] = 0
	heap.Push(pq, cellItem{cell: from, f: hOf(from), g: 0})

	steps := [8]struct {
		dx, dy int
		d      float64
	}{
		{1, 0, 1}, {-1, 0, 1}, {0, 1, 1}, {0, -1, 1},
		{1, 1, math.Sqrt2}, {1, -1, math.Sqrt2}, {-1, 1, math.Sqrt2}, {-1, -1, math.Sqrt2},
	}

	for pq.Len() > 0 {
		it := heap.Pop(pq).(cellItem)
		ci := idx(it.cell)
		if closed[ci] || it.g > dist[ci] {
			continue
		}
		closed[ci] = true
		if it.cell == to {
			// Reconstruct.
			var out []CellPos
			cur := ci
			for cur >= 0 {
				out = append(out, CellPos{cur % w, cur / w})
				cur = int(came[cur])
			}
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
			return out, it.g, nil
		}
		for _, st := range steps {
			nc := CellPos{it.cell.X + st.dx, it.cell.Y + st.dy}
			if !e.grid.IsRoad(nc) {
				continue
			}
			ng := it.g + cellCost(nc, st.d)
			ni := idx(nc)
			if ng < dist[ni] {
				dist[ni] = ng
				came[ni] = int32(ci)
				heap.Push(pq, cellItem{cell: nc, f: ng + hOf(nc), g: ng})
			}
		}
	}
	return nil, 0, ErrUnreachable
}

// --- priority queues ---

type pqItem struct {
	node NodeID
	f    float64
	g    float64
}

type nodeHeap []pqItem

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	if h[i].g != h[j].g {
		return h[i].g < h[j].g
	}
	return h[i].node < h[j].node
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)   { *h = append(*h, x.(pqItem)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type cellItem struct {
	cell CellPos
	f    float64
	g    float64
}

type cellHeap []cellItem

func (h cellHeap) Len() int { return len(h) }
func (h cellHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	if h[i].g != h[j].g {
		return h[i].g < h[j].g
	}
	if h[i].cell.Y != h[j].cell.Y {
		return h[i].cell.Y < h[j].cell.Y
	}
	return h[i].cell.X < h[j].cell.X
}
func (h cellHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cellHeap) Push(x any)   { *h = append(*h, x.(cellItem)) }
func (h *cellHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
