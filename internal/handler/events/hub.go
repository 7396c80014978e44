// Package events pushes orchestrator state changes to connected frontends
// over WebSocket, so typing indicators and new messages render without
// polling.
package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/roundtable/backend/internal/event"
)

const (
	writeTimeout     = 10 * time.Second
	clientBufferSize = 32
)

// Hub implements event.Bus over a set of WebSocket clients. Publish never
// blocks: a client that cannot keep up has its connection dropped.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[chan []byte]struct{}),
	}
}

// RegisterRoutes 注册事件流路由
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// Publish fans the event out to every connected client.
func (h *Hub) Publish(evt event.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[ws] failed to marshal event %s: %v", evt.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Slow consumer; closing the channel ends its write loop.
			delete(h.clients, ch)
			close(ch)
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	ch := make(chan []byte, clientBufferSize)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	clientCount := len(h.clients)
	h.mu.Unlock()
	log.Printf("[ws] client connected (%d active)", clientCount)

	go h.writeLoop(conn, ch)

	// The read loop only watches for the peer going away; clients send
	// nothing meaningful upstream.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
	log.Printf("[ws] client disconnected")
}

func (h *Hub) writeLoop(conn *websocket.Conn, ch <-chan []byte) {
	for data := range ch {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	conn.Close()
}
