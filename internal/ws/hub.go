// Package ws fans engine events out to connected browsers.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Event types published by the HTTP handlers.
const (
	EventNewDrop = "new_drop"
	EventVote    = "vote"
	EventUnlock  = "unlock"
	EventDelete  = "delete"
	EventPoll    = "poll"
)

// Message is the JSON frame sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type envelope struct {
	community string
	payload   []byte
}

// Hub owns the client set. Only Run touches it.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
	log        logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			close(h.done)
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case env := <-h.broadcast:
			for c := range h.clients {
				if env.community != "" && c.community != "" && c.community != env.community {
					continue
				}
				select {
				case c.send <- env.payload:
				default:
					// slow consumer
					h.drop(c)
				}
			}
		}
	}
}

// Publish queues an event for clients following community. An empty
// community reaches every client. Publish never blocks; events are dropped
// when the queue is full.
func (h *Hub) Publish(community, typ string, data any) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(Message{Type: typ, Data: data})
	if err != nil {
		h.log.WithError(err).WithField("type", typ).Error("marshal ws message")
		return
	}
	select {
	case h.broadcast <- envelope{community: community, payload: payload}:
	default:
		h.log.WithField("type", typ).Warn("ws broadcast queue full, event dropped")
	}
}

// Len is the number of connected clients.
func (h *Hub) Len() int { return int(h.count.Load()) }

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}
