package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/geometry"
	"voxelstream.ai/internal/sim/world/terrain/gen"
)

type Server struct {
	world     *world.World
	validator *protocol.Validator
	log       *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, v *protocol.Validator, logger *log.Logger) *Server {
	return &Server{
		world:     w,
		validator: v,
		log:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		observerID, out := s.handshake(r.Context(), conn)
		if observerID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Acks share the connection with STATUS; only the writer goroutine
		// touches conn for writes.
		acks := make(chan []byte, 16)

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-acks:
				case b = <-out:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			ack, ok := s.dispatch(ctx, observerID, msg)
			if !ok {
				continue
			}
			b, err := json.Marshal(ack)
			if err != nil {
				continue
			}
			select {
			case acks <- b:
			case <-ctx.Done():
			}
			if ack.Code == protocol.ErrWorldStopped {
				break
			}
		}
		cancel()

		// Cleanup.
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), time.Second)
		defer leaveCancel()
		if err := s.world.Leave(leaveCtx, observerID); err != nil && !errors.Is(err, world.ErrStopped) {
			s.log.Printf("leave %s: %v", observerID, err)
		}
	}
}

// dispatch applies one client message. It reports ok=false when the message
// gets no ACK (MOVE and RADIUS are fire-and-forget).
func (s *Server) dispatch(ctx context.Context, observerID string, msg []byte) (protocol.AckMsg, bool) {
	base, err := s.validator.Validate(msg)
	if err != nil {
		return reject(base.Type, protocol.ErrProtoBadRequest, err.Error()), true
	}
	if base.ProtocolVersion != protocol.Version {
		return reject(base.Type, protocol.ErrProtoBadRequest, "bad protocol_version"), true
	}

	switch base.Type {
	case protocol.TypeMove:
		var m protocol.MoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.AckMsg{}, false
		}
		pos := vec(m.Pos)
		_ = s.world.Move(ctx, world.MoveRequest{ID: observerID, Pos: &pos})
		return protocol.AckMsg{}, false

	case protocol.TypeRadius:
		var m protocol.RadiusMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.AckMsg{}, false
		}
		_ = s.world.Move(ctx, world.MoveRequest{ID: observerID, Radius: &m.Radius})
		return protocol.AckMsg{}, false

	case protocol.TypeTeleport:
		var m protocol.TeleportMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return reject(base.Type, protocol.ErrBadRequest, err.Error()), true
		}
		if err := s.world.Relocate(ctx, observerID, vec(m.Pos)); err != nil {
			return worldError(base.Type, err), true
		}
		return s.accept(base.Type), true

	case protocol.TypeSetBlock:
		var m protocol.SetBlockMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return reject(base.Type, protocol.ErrBadRequest, err.Error()), true
		}
		block, ok := gen.BlockByName(m.Block)
		if !ok {
			return reject(base.Type, protocol.ErrBadRequest, "unknown block "+m.Block), true
		}
		res, err := s.world.SetBlock(ctx, observerID, m.Pos[0], m.Pos[1], m.Pos[2], block)
		if err != nil {
			return worldError(base.Type, err), true
		}
		ack := s.accept(base.Type)
		ack.ServerTick = res.Tick
		return ack, true

	default:
		return reject(base.Type, protocol.ErrProtoBadRequest, "unexpected message type"), true
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (observerID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := s.validator.Validate(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	req := world.JoinRequest{Name: hello.ObserverName, Radius: -1, Out: out}
	if hello.Pos != nil {
		pos := vec(*hello.Pos)
		req.Pos = &pos
	}
	if hello.Radius != nil {
		req.Radius = *hello.Radius
	}

	joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := s.world.Join(joinCtx, req)
	if err != nil {
		reason := "server busy"
		code := websocket.CloseTryAgainLater
		if errors.Is(err, world.ErrStopped) {
			reason, code = "world stopped", websocket.CloseGoingAway
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.ObserverID, out
}

func (s *Server) accept(forType string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          forType,
		Accepted:        true,
		ServerTick:      s.world.CurrentTick(),
	}
}

func reject(forType, code, message string) protocol.AckMsg {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
	}
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          forType,
		Code:            code,
		Message:         message,
	}
}

func worldError(forType string, err error) protocol.AckMsg {
	code := protocol.ErrInternal
	switch {
	case errors.Is(err, world.ErrStopped):
		code = protocol.ErrWorldStopped
	case errors.Is(err, world.ErrUnknownObserver):
		code = protocol.ErrNotFound
	case errors.Is(err, world.ErrInvalidBlock):
		code = protocol.ErrBadRequest
	case errors.Is(err, world.ErrOutOfBounds):
		code = protocol.ErrInvalidTarget
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = protocol.ErrWorldBusy
	}
	return reject(forType, code, err.Error())
}

func vec(p [3]float64) geometry.Vec3d {
	return geometry.Vec3d{X: p[0], Y: p[1], Z: p[2]}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
