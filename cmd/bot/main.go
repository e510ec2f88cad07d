package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"voxelstream.ai/internal/protocol"
)

// bot drives one or more walking observers against a server, as a smoke and
// load test of chunk streaming.
func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "observer name prefix")
		bots     = flag.Int("bots", 1, "concurrent observers")
		radius   = flag.Int("radius", -1, "view radius in chunks (-1: server default)")
		speed    = flag.Float64("speed", 8, "walking speed in blocks per second")
		teleport = flag.Uint64("teleport_every", 0, "send TELEPORT every N ticks (0: never)")
		report   = flag.Uint64("report_every", 25, "log coverage every N ticks")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *bots; i++ {
		b := &walker{
			name:     fmt.Sprintf("%s-%d", *name, i),
			radius:   *radius,
			speed:    *speed,
			teleport: *teleport,
			report:   *report,
			rng:      rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
			logger:   logger,
		}
		g.Go(func() error { return b.run(gctx, *url) })
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatalf("%v", err)
	}
}

type walker struct {
	name     string
	radius   int
	speed    float64
	teleport uint64
	report   uint64
	rng      *rand.Rand
	logger   *log.Logger

	id      string
	pos     [3]float64
	heading float64
	dtSec   float64
}

func (b *walker) run(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%s: dial: %w", b.name, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ObserverName:    b.name,
		MaxQueue:        8,
	}
	if b.radius >= 0 {
		hello.Radius = &b.radius
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("%s: send HELLO: %w", b.name, err)
	}
	b.heading = b.rng.Float64() * 2 * math.Pi

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: read: %w", b.name, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.id, b.pos = w.ObserverID, w.Pos
			b.dtSec = float64(w.WorldParams.TickIntervalMs) / 1000
			b.logger.Printf("%s: WELCOME id=%s radius=%d seed=%d", b.name, w.ObserverID, w.Radius, w.WorldParams.Seed)

		case protocol.TypeStatus:
			var st protocol.StatusMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if err := b.onStatus(conn, &st); err != nil {
				return err
			}

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				b.logger.Printf("%s: %s rejected: %s %s", b.name, ack.AckFor, ack.Code, ack.Message)
			}
		}
	}
}

func (b *walker) onStatus(conn *websocket.Conn, st *protocol.StatusMsg) error {
	if b.report > 0 && st.Tick%b.report == 0 {
		b.logger.Printf("%s: tick=%d chunk=%v coverage=%d/%d relocating=%t",
			b.name, st.Tick, st.Chunk, st.Coverage.Resident, st.Coverage.Total, st.PendingRelocation != nil)
	}
	if st.PendingRelocation != nil {
		// Position updates are ignored until the relocation commits.
		return nil
	}
	// Follow the authoritative position so a committed teleport is picked up.
	b.pos = st.Pos

	if b.teleport > 0 && st.Tick%b.teleport == 0 {
		dst := [3]float64{
			b.pos[0] + float64(b.rng.Intn(4001)-2000),
			b.pos[1],
			b.pos[2] + float64(b.rng.Intn(4001)-2000),
		}
		return conn.WriteJSON(protocol.TeleportMsg{
			Type:            protocol.TypeTeleport,
			ProtocolVersion: protocol.Version,
			ID:              fmt.Sprintf("T_%s_%d", b.id, st.Tick),
			Pos:             dst,
		})
	}

	if b.rng.Intn(50) == 0 {
		b.heading += (b.rng.Float64() - 0.5) * math.Pi / 2
	}
	step := b.speed * b.dtSec
	b.pos[0] += math.Cos(b.heading) * step
	b.pos[2] += math.Sin(b.heading) * step
	return conn.WriteJSON(protocol.MoveMsg{
		Type:            protocol.TypeMove,
		ProtocolVersion: protocol.Version,
		Pos:             b.pos,
	})
}
