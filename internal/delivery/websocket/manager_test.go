package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ambient-novel/internal/audio/ambient"
	"ambient-novel/internal/audio/engine"
	"ambient-novel/internal/audio/layers"
	ws "ambient-novel/internal/delivery/websocket"
	"ambient-novel/internal/narrative"
	"ambient-novel/internal/session"
	"ambient-novel/internal/storygraph"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type frame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func setup(t *testing.T) (*ws.Hub, *session.Session, *websocket.Conn) {
	t.Helper()
	store, err := storygraph.Default()
	require.NoError(t, err)
	mgr := session.NewManager(session.Deps{
		Machine:      narrative.New(store),
		Registry:     layers.DefaultRegistry(nil),
		Builder:      layers.NewFactory(nil, zap.NewNop(), layers.WithSeed(1)),
		SampleRate:   8000,
		Ambient:      ambient.DefaultConfig(),
		NewScheduler: func() engine.Scheduler { return engine.NewManualScheduler() },
		Logger:       zap.NewNop(),
	}, time.Hour)
	t.Cleanup(mgr.Close)

	s, err := mgr.Create(context.Background(), "")
	require.NoError(t, err)

	hub := ws.NewHub(nil, zap.NewNop())
	hub.Start()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, s)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return hub, s, conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHub_PushesSnapshots(t *testing.T) {
	hub, s, conn := setup(t)

	first := read(t, conn)
	assert.Equal(t, ws.MessageSnapshot, first.Type)
	assert.Equal(t, "start", first.Payload["sceneId"])
	assert.Equal(t, 1, hub.Count())

	_, err := s.Advance(context.Background())
	require.NoError(t, err)
	next := read(t, conn)
	assert.Equal(t, float64(1), next.Payload["lineIndex"])
}

func TestHub_AppliesCommands(t *testing.T) {
	_, _, conn := setup(t)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(ws.Command{Action: "choose", NextScene: "darkPath"}))
	got := read(t, conn)
	assert.Equal(t, ws.MessageSnapshot, got.Type)
	assert.Equal(t, "darkPath", got.Payload["sceneId"])
	assert.Equal(t, "cave", got.Payload["environment"])

	require.NoError(t, conn.WriteJSON(ws.Command{Action: "choose", NextScene: "start"}))
	errFrame := read(t, conn)
	assert.Equal(t, ws.MessageError, errFrame.Type)

	require.NoError(t, conn.WriteJSON(ws.Command{Action: "dance"}))
	assert.Equal(t, ws.MessageError, read(t, conn).Type)
}
