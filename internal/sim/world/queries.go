package world

import (
	"errors"

	"cityflow.sim/internal/protocol"
)

func (w *World) routeEnv() *routeEnv {
	return &routeEnv{
		grid:    w.grid,
		store:   w.store,
		graph:   w.graph.Load(),
		traffic: w.traffic,
		ratios:  w.ratios,
		cats:    w.cats,
		tun:     w.tun,
	}
}

// handlePathQuery answers PATH and CONGESTION queries. Preview queries
// never deposit traffic; they read the field as of the last tick.
func (w *World) handlePathQuery(req PathQueryReq) {
	nowTick := w.tick.Load()
	out := protocol.PathMsg{
		Type:            protocol.TypePath,
		ProtocolVersion: protocol.Version,
		AckFor:          req.Query.ID,
		ServerTick:      nowTick,
	}
	defer func() {
		if req.Resp != nil {
			select {
			case req.Resp <- out:
			default:
			}
		}
	}()

	switch req.Query.Kind {
	case protocol.QueryPath:
		if req.Query.Path == nil {
			out.Code = protocol.ErrProtoBadRequest
			return
		}
		q := req.Query.Path
		profile := uint8(0)
		if q.Profile != "" {
			idx, ok := w.cats.Profiles.Index[q.Profile]
			if !ok {
				out.Code = protocol.ErrBadRequest
				return
			}
			profile = idx
		}
		from := CellPos{X: q.From[0], Y: q.From[1]}
		to := CellPos{X: q.To[0], Y: q.To[1]}
		p, err := w.routeEnv().FindPath(from, to, profile)
		if err != nil {
			out.Code = queryErrorCode(err)
			return
		}
		out.Accepted = true
		out.Waypoints = make([][2]int, len(p.Waypoints))
		for i, c := range p.Waypoints {
			out.Waypoints[i] = [2]int{c.X, c.Y}
		}
		out.Cost = p.Cost
		out.Degraded = p.Degraded
		out.Congestion = w.pathCongestion(p.Waypoints)

	case protocol.QueryCongestion:
		if req.Query.Congestion == nil {
			out.Code = protocol.ErrProtoBadRequest
			return
		}
		c := CellPos{X: req.Query.Congestion.Cell[0], Y: req.Query.Congestion.Cell[1]}
		if !w.grid.InBounds(c) || !w.grid.IsRoad(c) {
			out.Code = protocol.ErrInvalidEndpoint
			return
		}
		out.Accepted = true
		out.Congestion = w.cellCongestion(c)

	default:
		out.Code = protocol.ErrProtoBadRequest
	}
}

// pathCongestion is the mean cell load ratio along a polyline.
func (w *World) pathCongestion(way []CellPos) float64 {
	if len(way) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range way {
		sum += w.cellCongestion(c)
	}
	return sum / float64(len(way))
}

func (w *World) cellCongestion(c CellPos) float64 {
	cell := w.grid.At(c)
	if cell.Kind != CellRoad {
		return 0
	}
	def, ok := w.cats.Roads.ClassByIndex(cell.Class)
	if !ok || def.Capacity <= 0 {
		return 0
	}
	return float64(w.traffic.LoadAt(c)) / def.Capacity
}

func queryErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEndpoint):
		return protocol.ErrInvalidEndpoint
	case errors.Is(err, ErrUnreachable):
		return protocol.ErrUnreachable
	default:
		return protocol.ErrInternal
	}
}

func protocolStats(w *World, g *CSRGraph, nowTick uint64) protocol.StatsMsg {
	return protocol.StatsMsg{
		Type:            protocol.TypeStats,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		RealAgents:      len(w.agents),
		VirtualTotal:    w.vpop.TotalVirtual(),
		Commuting:       w.commutingCount(),
		CommuteVolume:   w.commuteVolume,
		AvgCongestion:   w.avgCongestion(),
		Graph: protocol.GraphStats{
			Nodes:      g.NodeCount(),
			Edges:      g.EdgeCount(),
			Generation: g.Generation,
			Fallback:   g.EdgeCount() == 0 && w.store.Len() > 0,
		},
	}
}
