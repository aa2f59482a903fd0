package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lprd/internal/pipeline"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, hub.HasClients, time.Second, 10*time.Millisecond)
	return conn
}

func TestHubPublishDetections(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialTestHub(t, hub)

	frame := &pipeline.Frame{
		Seq:       9,
		Data:      []byte{0xff, 0xd8, 0xff, 0xd9},
		Timestamp: time.Now(),
		Width:     640,
		Height:    480,
	}
	events := []*pipeline.DetectionEvent{{
		ID:         "d1",
		Plate:      "ABC123",
		Authorized: true,
	}}

	hub.PublishDetections(frame, events)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg DetectionMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "detection", msg.Type)
	assert.Equal(t, uint64(9), msg.FrameSeq)
	assert.Equal(t, 640, msg.FrameWidth)
	require.Len(t, msg.Plates, 1)
	assert.Equal(t, "ABC123", msg.Plates[0].Plate)
	assert.True(t, msg.Plates[0].Authorized)
	assert.NotEmpty(t, msg.Frame)
}

func TestHubPublishDetectionsWithoutFrameBytes(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialTestHub(t, hub)

	hub.PublishDetections(&pipeline.Frame{Seq: 1, Width: 320, Height: 240}, nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg DetectionMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Empty(t, msg.Frame)
	assert.NotNil(t, msg.Plates)
	assert.Empty(t, msg.Plates)
}

func TestHubPublishStats(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialTestHub(t, hub)

	hub.PublishStats(pipeline.Stats{FramesCaptured: 12, PlatesRead: 3, Running: true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg StatsMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "stats", msg.Type)
	assert.Equal(t, uint64(12), msg.Stats.FramesCaptured)
	assert.True(t, msg.Stats.Running)
}

func TestHubSkipsEncodingWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	assert.False(t, hub.HasClients())
	// Must not panic or block with nobody connected.
	hub.PublishDetections(&pipeline.Frame{Seq: 1}, nil)
	hub.PublishStats(pipeline.Stats{})
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubConcurrentBroadcasts(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialTestHub(t, hub)

	payload := []byte(`{"type":"stats"}`)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.Broadcast(payload)
			}
		}()
	}
	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 160; i++ {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	}
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialTestHub(t, hub)
	require.Equal(t, 1, hub.ClientCount())

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
