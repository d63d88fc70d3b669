package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-map/internal/display"
	mmetrics "transit-map/internal/metrics"
	"transit-map/internal/render"
	"transit-map/internal/transit"
)

func selectedSnapshot() display.Snapshot {
	return display.Snapshot{
		Seq:   7,
		State: display.Selected,
		Route: transit.Route{ID: "r1", Name: "Coast", Stops: []string{"A", "B"}},
		Stops: []transit.Stop{
			{ID: "A", Name: "Harbour", X: 0, Y: 0},
			{ID: "B", Name: "Market", X: 100, Y: 50},
		},
		Vehicle: transit.Vehicle{
			ID:               "bus-1",
			RouteID:          "r1",
			Position:         transit.Point{X: 50, Y: 25},
			CurrentStopIndex: 0,
			NextStopIndex:    1,
			Speed:            10,
			Status:           "on time",
		},
		ETA: 56,
	}
}

func newTestHub(t *testing.T) (*Hub, *mmetrics.Collector) {
	t.Helper()
	m := mmetrics.NewCollector(time.Second)
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h, m
}

func receive(t *testing.T, c *Client) FrameMessage {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg FrameMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return FrameMessage{}
	}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestBroadcastProjectsPerViewport(t *testing.T) {
	h, m := newTestHub(t)
	small := NewClient("small", 4, render.Viewport{Width: 200, Height: 100})
	large := NewClient("large", 4, render.Viewport{Width: 800, Height: 600})
	h.Register(small)
	h.Register(large)
	waitForClients(t, h, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WSClients))

	h.Broadcast(selectedSnapshot())

	got := receive(t, small)
	assert.Equal(t, "frame", got.Type)
	assert.Equal(t, uint64(7), got.Payload.Seq)
	require.NotNil(t, got.Payload.Vehicle)
	assert.Equal(t, render.Pixel{X: 100, Y: 25}, got.Payload.Vehicle.Pixel)

	got = receive(t, large)
	require.NotNil(t, got.Payload.Vehicle)
	assert.Equal(t, render.Pixel{X: 400, Y: 150}, got.Payload.Vehicle.Pixel)
	assert.Equal(t, render.Pixel{X: 800, Y: 300}, got.Payload.Polyline[1])
}

func TestResizeChangesNextFrame(t *testing.T) {
	h, _ := newTestHub(t)
	c := NewClient("c", 4, render.Viewport{Width: 100, Height: 100})
	h.Register(c)
	waitForClients(t, h, 1)

	c.SetViewport(render.Viewport{Width: 1000, Height: 200})
	h.SendFrame(c, selectedSnapshot())

	got := receive(t, c)
	assert.Equal(t, render.Viewport{Width: 1000, Height: 200}, got.Payload.Viewport)
	assert.Equal(t, render.Pixel{X: 500, Y: 50}, got.Payload.Vehicle.Pixel)
}

func TestFullBufferDropsFrame(t *testing.T) {
	h, m := newTestHub(t)
	c := NewClient("slow", 1, render.Viewport{Width: 10, Height: 10})
	h.Register(c)
	waitForClients(t, h, 1)

	assert.True(t, h.SendFrame(c, selectedSnapshot()))
	assert.False(t, h.SendFrame(c, selectedSnapshot()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped))
	assert.Len(t, c.Send, 1)
}

func TestUnregisterClosesSend(t *testing.T) {
	h, m := newTestHub(t)
	c := NewClient("c", 1, render.Viewport{Width: 10, Height: 10})
	h.Register(c)
	waitForClients(t, h, 1)

	h.Unregister(c)
	waitForClients(t, h, 0)
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WSClients))

	assert.False(t, h.Send(c, []byte("late")), "send to a removed client")

	// A second unregister is a no-op.
	h.Unregister(c)
}

func TestShutdownClosesClients(t *testing.T) {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := NewClient("c", 1, render.Viewport{Width: 10, Height: 10})
	h.Register(c)
	waitForClients(t, h, 1)

	cancel()
	<-done
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Zero(t, h.ClientCount())

	late := NewClient("late", 1, render.Viewport{Width: 10, Height: 10})
	h.Register(late)
	_, ok = <-late.Send
	assert.False(t, ok, "registering after shutdown closes the client")
}
