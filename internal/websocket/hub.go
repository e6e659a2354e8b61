package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/policydesk/api/internal/model"
)

const sendBuffer = 16

// Client represents a WebSocket viewer of one batch
type Client struct {
	BatchID string
	Conn    *websocket.Conn
	Send    chan []byte
}

// outgoing is the newest undelivered message of a batch
type outgoing struct {
	data   []byte
	closed bool
}

// SnapshotSource returns the current snapshot of a batch
type SnapshotSource func(batchID string) (model.BatchSnapshot, bool)

// Hub maintains active WebSocket connections
type Hub struct {
	// Current state sent to a viewer when it registers
	source SnapshotSource

	// Clients grouped by batch ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Newest message per batch, delivered by Run. A snapshot replaces any
	// older undelivered one; a close is never replaced.
	pending map[string]outgoing
	pendMu  sync.Mutex
	wake    chan struct{}

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub. source may be nil.
func NewHub(source SnapshotSource) *Hub {
	return &Hub{
		source:     source,
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		pending:    make(map[string]outgoing),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			// deliver older updates first so the new viewer starts from the
			// current snapshot
			h.flush()
			h.mu.Lock()
			if h.clients[client.BatchID] == nil {
				h.clients[client.BatchID] = make(map[*Client]bool)
			}
			h.clients[client.BatchID][client] = true
			h.mu.Unlock()
			h.sendCurrent(client)
			log.Printf("[Hub] viewer registered for batch %s", client.BatchID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()
			log.Printf("[Hub] viewer unregistered from batch %s", client.BatchID)

		case <-h.wake:
			h.flush()
		}
	}
}

// flush delivers every pending message. A viewer whose buffer is full misses
// the snapshot; the next one carries the full state again.
func (h *Hub) flush() {
	h.pendMu.Lock()
	batch := h.pending
	h.pending = make(map[string]outgoing)
	h.pendMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	for batchID, msg := range batch {
		for client := range h.clients[batchID] {
			select {
			case client.Send <- msg.data:
			default:
				if !msg.closed {
					log.Printf("[Hub] viewer of batch %s is slow, snapshot dropped", batchID)
				}
			}
			if msg.closed {
				h.drop(client)
			}
		}
	}
}

// drop removes client and closes its send channel. Callers hold h.mu.
func (h *Hub) drop(client *Client) {
	clients, ok := h.clients[client.BatchID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.BatchID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			h.drop(client)
		}
	}
}

// Register adds a new client. Once the hub has stopped the client's send
// channel is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client. It returns at once after the hub stopped,
// since stopping already dropped every client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Viewers returns the number of connected viewers of a batch
func (h *Hub) Viewers(batchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[batchID])
}

// PublishSnapshot queues a snapshot for every viewer of its batch. It never
// blocks, so it is safe to call while the status store holds its lock.
func (h *Hub) PublishSnapshot(snap model.BatchSnapshot) {
	data, err := SnapshotMessage(snap)
	if err != nil {
		log.Printf("[Hub] failed to marshal snapshot message: %v", err)
		return
	}
	h.enqueue(snap.BatchID, outgoing{data: data})
}

// PublishClosed tells every viewer of a batch that it was closed and
// disconnects them.
func (h *Hub) PublishClosed(batchID string) {
	data, err := json.Marshal(model.WSClosedMessage{Type: model.WSMessageTypeClosed, BatchID: batchID})
	if err != nil {
		log.Printf("[Hub] failed to marshal closed message: %v", err)
		return
	}
	h.enqueue(batchID, outgoing{data: data, closed: true})
}

func (h *Hub) enqueue(batchID string, msg outgoing) {
	h.pendMu.Lock()
	if prev, ok := h.pending[batchID]; !ok || !prev.closed {
		h.pending[batchID] = msg
	}
	h.pendMu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) sendCurrent(client *Client) {
	if h.source == nil {
		return
	}
	snap, ok := h.source(client.BatchID)
	if !ok {
		return
	}
	data, err := SnapshotMessage(snap)
	if err != nil {
		log.Printf("[Hub] failed to marshal snapshot message: %v", err)
		return
	}
	h.reply(client, data)
}

// reply sends data to one client if it is still registered
func (h *Hub) reply(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client.BatchID][client] {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// SnapshotMessage encodes a snapshot as a WebSocket frame
func SnapshotMessage(snap model.BatchSnapshot) ([]byte, error) {
	return json.Marshal(model.WSSnapshotMessage{
		Type:     model.WSMessageTypeSnapshot,
		BatchID:  snap.BatchID,
		Snapshot: snap,
	})
}

// HandleConnection streams snapshots of batchID to c until either side closes
func (h *Hub) HandleConnection(c *websocket.Conn, batchID string) {
	client := &Client{
		BatchID: batchID,
		Conn:    c,
		Send:    make(chan []byte, sendBuffer),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch closed"))
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[Hub] websocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.reply(client, data)
		}
	}
}
