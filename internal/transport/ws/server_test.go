package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
	"voxelstream.ai/internal/sim/worldtest"
)

func startServer(t *testing.T) (*worldtest.Harness, string) {
	t.Helper()
	h := worldtest.Start(t)
	v, err := protocol.NewValidator()
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(h.World, v, worldtest.Quiet).Handler())
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads until a message of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string, v any) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		base, err := protocol.DecodeBase(msg)
		require.NoError(t, err)
		if base.Type == typ {
			require.NoError(t, json.Unmarshal(msg, v))
			return
		}
	}
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	radius := 1
	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ObserverName:    "tester",
		Radius:          &radius,
	}))
	var welcome protocol.WelcomeMsg
	readType(t, conn, protocol.TypeWelcome, &welcome)
	return welcome
}

func TestHandshakeAndStatus(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	welcome := hello(t, conn)
	assert.Equal(t, "O1", welcome.ObserverID)
	assert.Equal(t, 1, welcome.Radius)
	assert.Equal(t, 8, welcome.WorldParams.Height)

	var status protocol.StatusMsg
	readType(t, conn, protocol.TypeStatus, &status)
	assert.Equal(t, "O1", status.ObserverID)
	assert.Equal(t, 5, status.Coverage.Total)
}

func TestHandshakeRejectsNonHello(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "MOVE", "protocol_version": protocol.Version, "pos": []float64{0, 0, 0}}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
}

func TestSetBlockIsAcknowledgedAndPersisted(t *testing.T) {
	h, url := startServer(t)
	conn := dial(t, url)
	hello(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.SetBlockMsg{
		Type:            protocol.TypeSetBlock,
		ProtocolVersion: protocol.Version,
		Pos:             [3]int{500, 1, 500},
		Block:           "STONE",
	}))
	var ack protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &ack)
	assert.True(t, ack.Accepted)
	assert.Equal(t, protocol.TypeSetBlock, ack.AckFor)

	require.NoError(t, h.Writer.Flush(context.Background()))
	got, err := h.Overrides.ReadOverrides(context.Background(), store.ChunkOf(500, 500))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, gen.Stone, got[0].Block)
}

func TestBadRequestsAreRejected(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)
	hello(t, conn)

	cases := []struct {
		name string
		msg  any
		code string
	}{
		{"schema", map[string]any{"type": "SET_BLOCK", "protocol_version": protocol.Version, "pos": []int{1, 2}, "block": "STONE"}, protocol.ErrProtoBadRequest},
		{"unknown block", protocol.SetBlockMsg{Type: protocol.TypeSetBlock, ProtocolVersion: protocol.Version, Block: "LAVA"}, protocol.ErrBadRequest},
		{"out of bounds", protocol.SetBlockMsg{Type: protocol.TypeSetBlock, ProtocolVersion: protocol.Version, Pos: [3]int{0, 100, 0}, Block: "STONE"}, protocol.ErrInvalidTarget},
		{"version", protocol.RadiusMsg{Type: protocol.TypeRadius, ProtocolVersion: "0.1", Radius: 2}, protocol.ErrProtoBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(tc.msg))
			var ack protocol.AckMsg
			readType(t, conn, protocol.TypeAck, &ack)
			assert.False(t, ack.Accepted)
			assert.Equal(t, tc.code, ack.Code)
		})
	}
}

func TestTeleportCommitsOnceResident(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)
	hello(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.TeleportMsg{
		Type:            protocol.TypeTeleport,
		ProtocolVersion: protocol.Version,
		Pos:             [3]float64{3*16 + 1, 5, 3*16 + 1},
	}))
	var ack protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &ack)
	require.True(t, ack.Accepted)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status protocol.StatusMsg
		readType(t, conn, protocol.TypeStatus, &status)
		if status.Chunk == [2]int{3, 3} {
			assert.Nil(t, status.PendingRelocation)
			return
		}
	}
	t.Fatal("relocation never committed")
}
