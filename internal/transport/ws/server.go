package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cityflow.sim/internal/protocol"
	"cityflow.sim/internal/sim/tuning"
	"cityflow.sim/internal/sim/world"
)

type Server struct {
	world *world.World
	tun   *tuning.Tuning
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, tun *tuning.Tuning, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		tun:   tun,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// rateWindow is a simple fixed-window counter. Windows are configured in
// ticks; the transport converts them to wall time at the world tick rate.
type rateWindow struct {
	span  time.Duration
	max   int
	start time.Time
	count int
}

func newRateWindow(ticks, max, tickRateHz int) *rateWindow {
	if tickRateHz <= 0 {
		tickRateHz = 10
	}
	return &rateWindow{
		span: time.Duration(ticks) * time.Second / time.Duration(tickRateHz),
		max:  max,
	}
}

func (r *rateWindow) allow(now time.Time) bool {
	if now.Sub(r.start) > r.span {
		r.start = now
		r.count = 0
	}
	r.count++
	return r.count <= r.max
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out, tickRate := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		editLimit := newRateWindow(s.tun.RateLimits.EditWindowTicks, s.tun.RateLimits.EditMax, tickRate)
		queryLimit := newRateWindow(s.tun.RateLimits.QueryWindowTicks, s.tun.RateLimits.QueryMax, tickRate)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeEdit:
				var edit protocol.EditMsg
				if err := json.Unmarshal(msg, &edit); err != nil {
					continue
				}
				if edit.ProtocolVersion != protocol.Version {
					continue
				}
				if !editLimit.allow(time.Now()) {
					s.send(out, protocol.ResultMsg{
						Type:            protocol.TypeResult,
						ProtocolVersion: protocol.Version,
						AckFor:          edit.ID,
						Code:            protocol.ErrRateLimit,
					})
					continue
				}
				respCh := make(chan protocol.ResultMsg, 1)
				s.world.Inbox() <- world.EditEnvelope{SessionID: sessionID, Edit: edit, Resp: respCh}
				go s.forwardResult(ctx, respCh, out)

			case protocol.TypeQuery:
				var q protocol.QueryMsg
				if err := json.Unmarshal(msg, &q); err != nil {
					continue
				}
				if q.ProtocolVersion != protocol.Version {
					continue
				}
				if !queryLimit.allow(time.Now()) {
					s.send(out, protocol.PathMsg{
						Type:            protocol.TypePath,
						ProtocolVersion: protocol.Version,
						AckFor:          q.ID,
						Code:            protocol.ErrRateLimit,
					})
					continue
				}
				respCh := make(chan protocol.PathMsg, 1)
				s.world.Queries() <- world.PathQueryReq{Query: q, Resp: respCh}
				go s.forwardPath(ctx, respCh, out)

			default:
				// Unknown message types are ignored; the protocol grows
				// without breaking old clients.
			}
		}

		// Cleanup.
		s.world.Leave() <- sessionID
	}
}

func (s *Server) forwardResult(ctx context.Context, respCh <-chan protocol.ResultMsg, out chan []byte) {
	select {
	case <-ctx.Done():
	case r := <-respCh:
		s.send(out, r)
	case <-time.After(10 * time.Second):
	}
}

func (s *Server) forwardPath(ctx context.Context, respCh <-chan protocol.PathMsg, out chan []byte) {
	select {
	case <-ctx.Done():
	case r := <-respCh:
		s.send(out, r)
	case <-time.After(10 * time.Second):
	}
}

func (s *Server) send(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
		// Slow consumer; drop rather than stall.
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte, tickRate int) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil, 0
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil, 0
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil, 0
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil, 0
	}
	if hello.ClientName == "" {
		hello.ClientName = "editor"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		Name:  hello.ClientName,
		Stats: hello.Capabilities.StatsStream,
		Out:   out,
		Resp:  respCh,
	}
	resp := <-respCh

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil, 0
	}
	return resp.Welcome.SessionID, out, resp.Welcome.WorldParams.TickRateHz
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
