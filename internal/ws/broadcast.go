package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/metal-pod/backend/internal/event"
)

const writeWait = 10 * time.Second

// ErrTooManyClients is returned by AddClient when the connection limit is
// reached.
var ErrTooManyClients = errors.New("too many websocket clients")

// SnapshotFunc builds the message sent to a client when it connects.
type SnapshotFunc func(ctx context.Context) (SnapshotPayload, error)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			for range c.send {
			}
			return
		}
	}
}

// Broadcaster fans outbound notifications out to websocket clients. Slow
// clients are disconnected instead of blocking the publisher.
type Broadcaster struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	sendBuffer int
	maxConns   int
	snapshot   SnapshotFunc
	logger     *zap.Logger

	unsubscribe func()
}

// NewBroadcaster creates a Broadcaster. maxConns <= 0 means unlimited.
func NewBroadcaster(sendBuffer, maxConns int, snapshot SnapshotFunc, logger *zap.Logger) *Broadcaster {
	if sendBuffer < 1 {
		sendBuffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		clients:    make(map[*client]bool),
		sendBuffer: sendBuffer,
		maxConns:   maxConns,
		snapshot:   snapshot,
		logger:     logger,
	}
}

// Attach forwards achievement-unlocked and currency-changed notifications
// from bus.
func (b *Broadcaster) Attach(bus *event.Bus) {
	b.unsubscribe = bus.Subscribe(func(ev event.Event) {
		if msg, ok := messageFor(ev); ok {
			b.broadcast(msg)
		}
	}, event.AchievementUnlocked, event.CurrencyChanged)
}

// AddClient registers conn and queues a snapshot ahead of any later
// broadcast.
func (b *Broadcaster) AddClient(ctx context.Context, conn *websocket.Conn) (*client, error) {
	var first []byte
	if b.snapshot != nil {
		payload, err := b.snapshot(ctx)
		if err != nil {
			first = b.encode(newMessage(MsgError, time.Time{}, ErrorPayload{Message: err.Error()}))
		} else {
			first = b.encode(newMessage(MsgSnapshot, time.Time{}, payload))
		}
	}

	c := &client{conn: conn, b: b, send: make(chan []byte, b.sendBuffer)}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyClients
	}
	b.clients[c] = true
	if first != nil {
		c.send <- first
	}
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) encode(msg WSMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast marshal error", zap.Error(err))
		return nil
	}
	return data
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data := b.encode(msg)
	if data == nil {
		return
	}

	// Sends happen under the read lock so RemoveClient cannot close a
	// channel mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close detaches from the bus and disconnects every client.
func (b *Broadcaster) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}
