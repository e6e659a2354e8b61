package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/policydesk/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func viewer(batchID string) *Client {
	return &Client{BatchID: batchID, Send: make(chan []byte, sendBuffer)}
}

func receive(t *testing.T, c *Client) ([]byte, bool) {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		return data, ok
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil, false
	}
}

func snapshot(batchID string, completed int) model.BatchSnapshot {
	return model.BatchSnapshot{BatchID: batchID, Counts: model.SnapshotCounts{Completed: completed}}
}

func TestHub_SnapshotReachesOnlyItsBatch(t *testing.T) {
	h := startHub(t)
	a, b := viewer("b1"), viewer("b2")
	h.Register(a)
	h.Register(b)

	h.PublishSnapshot(snapshot("b1", 1))

	data, ok := receive(t, a)
	require.True(t, ok)
	var msg model.WSSnapshotMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, model.WSMessageTypeSnapshot, msg.Type)
	assert.Equal(t, "b1", msg.BatchID)
	assert.Equal(t, 1, msg.Snapshot.Counts.Completed)

	assert.Empty(t, b.Send)
}

func TestHub_ClosedDisconnectsViewers(t *testing.T) {
	h := startHub(t)
	a := viewer("b1")
	h.Register(a)
	require.Equal(t, 1, h.Viewers("b1"))

	h.PublishClosed("b1")

	data, ok := receive(t, a)
	require.True(t, ok)
	var msg model.WSClosedMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, model.WSMessageTypeClosed, msg.Type)

	_, ok = receive(t, a)
	assert.False(t, ok)
	assert.Equal(t, 0, h.Viewers("b1"))

	// unregistering after the hub dropped the viewer is harmless
	h.Unregister(a)
}

func TestHub_LatestSnapshotWins(t *testing.T) {
	h := NewHub(nil)
	a := viewer("b1")

	// queue before the loop runs so both publishes coalesce
	h.PublishSnapshot(snapshot("b1", 1))
	h.PublishSnapshot(snapshot("b1", 2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.mu.Lock()
	h.clients["b1"] = map[*Client]bool{a: true}
	h.mu.Unlock()
	go h.Run(ctx)

	data, _ := receive(t, a)
	var msg model.WSSnapshotMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, 2, msg.Snapshot.Counts.Completed)
}

func TestHub_CloseIsNotReplacedBySnapshot(t *testing.T) {
	h := NewHub(nil)
	h.PublishClosed("b1")
	h.PublishSnapshot(snapshot("b1", 3))
	assert.True(t, h.pending["b1"].closed)
}

func TestHub_SlowViewerDoesNotBlock(t *testing.T) {
	h := startHub(t)
	slow := &Client{BatchID: "b1", Send: make(chan []byte)}
	fast := viewer("b1")
	h.Register(slow)
	h.Register(fast)

	h.PublishSnapshot(snapshot("b1", 1))
	_, ok := receive(t, fast)
	assert.True(t, ok)
	assert.Equal(t, 2, h.Viewers("b1"))
}

func TestHub_RunStopsWithContext(t *testing.T) {
	h := NewHub(nil)
	a := viewer("b1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	h.Register(a)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, ok := <-a.Send
	assert.False(t, ok)
}

func TestHub_StoppedHubDoesNotBlockViewers(t *testing.T) {
	h := NewHub(nil)
	a := viewer("b1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	h.Register(a)
	cancel()
	<-done

	late := viewer("b1")
	returned := make(chan struct{})
	go func() {
		h.Unregister(a)
		h.Register(late)
		h.Unregister(late)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("register/unregister blocked on a stopped hub")
	}
	_, ok := <-late.Send
	assert.False(t, ok)
	assert.Equal(t, 0, h.Viewers("b1"))
}

func TestHub_NewViewerGetsCurrentSnapshot(t *testing.T) {
	h := NewHub(func(batchID string) (model.BatchSnapshot, bool) {
		if batchID != "b1" {
			return model.BatchSnapshot{}, false
		}
		return snapshot("b1", 5), true
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := viewer("b1")
	h.Register(a)
	data, ok := receive(t, a)
	require.True(t, ok)
	var msg model.WSSnapshotMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, 5, msg.Snapshot.Counts.Completed)

	other := viewer("b2")
	h.Register(other)
	assert.Empty(t, other.Send)
}
