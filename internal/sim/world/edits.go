package world

import (
	"errors"

	"cityflow.sim/internal/protocol"
)

// applyEdit validates and applies one road edit against the store. The
// result carries a protocol error code instead of a Go error so sessions
// in any language can act on it.
func (w *World) applyEdit(e protocol.EditMsg, nowTick uint64) protocol.ResultMsg {
	res := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		AckFor:          e.ID,
		ServerTick:      nowTick,
	}

	var err error
	switch e.Op {
	case protocol.OpPlaceRoad:
		if e.Place == nil {
			res.Code = protocol.ErrProtoBadRequest
			res.Message = "place payload missing"
			return res
		}
		var seg *Segment
		seg, err = w.placeRoad(e.Place)
		if err == nil {
			res.SegmentID = uint32(seg.ID)
		}
	case protocol.OpRemoveRoad:
		if e.Remove == nil {
			res.Code = protocol.ErrProtoBadRequest
			res.Message = "remove payload missing"
			return res
		}
		err = w.store.Remove(SegmentID(e.Remove.SegmentID))
	case protocol.OpUpgradeRoad:
		if e.Upgrade == nil {
			res.Code = protocol.ErrProtoBadRequest
			res.Message = "upgrade payload missing"
			return res
		}
		err = w.upgradeRoad(e.Upgrade)
	default:
		res.Code = protocol.ErrProtoBadRequest
		res.Message = "unknown op"
		return res
	}

	if err != nil {
		res.Code = editErrorCode(err)
		res.Message = err.Error()
		return res
	}
	res.Accepted = true
	return res
}

func (w *World) placeRoad(p *protocol.PlaceRoad) (*Segment, error) {
	class, ok := w.cats.Roads.Index[p.Class]
	if !ok {
		return nil, ErrInvalidGeometry
	}
	a := Vec2{X: p.From[0], Y: p.From[1]}
	b := Vec2{X: p.To[0], Y: p.To[1]}
	var c Curve
	if p.Control != nil {
		c = Curve{
			P0: a,
			P1: Vec2{X: p.Control[0][0], Y: p.Control[0][1]},
			P2: Vec2{X: p.Control[1][0], Y: p.Control[1][1]},
			P3: b,
		}
	} else {
		c = Line(a, b)
	}
	return w.store.Add(c, class)
}

func (w *World) upgradeRoad(u *protocol.UpgradeRoad) error {
	class, ok := w.cats.Roads.Index[u.Class]
	if !ok {
		return ErrInvalidGeometry
	}
	return w.store.Upgrade(SegmentID(u.SegmentID), class)
}

func editErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidGeometry):
		return protocol.ErrInvalidGeometry
	case errors.Is(err, ErrNotFound):
		return protocol.ErrNotFound
	default:
		return protocol.ErrInternal
	}
}
