package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Hub fans status frames out to the connected websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// Stream broadcasts a frame from source on every tick. It never
// returns; the daemon's lifetime bounds it.
func (h *Hub) Stream(interval time.Duration, source func() any) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if h.clientCount() == 0 {
			continue
		}
		h.Broadcast(source())
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(ws *websocket.Conn) {
		h.mu.Lock()
		h.clients[ws] = true
		h.mu.Unlock()

		defer func() {
			h.mu.Lock()
			delete(h.clients, ws)
			h.mu.Unlock()
			ws.Close()
		}()

		// Clients only listen; reads just detect the disconnect.
		buf := make([]byte, 512)
		for {
			if _, err := ws.Read(buf); err != nil {
				return
			}
		}
	}).ServeHTTP(w, r)
}

// Broadcast sends one frame to every client. Clients whose write fails
// are dropped; their handler goroutine cleans up on the failed read.
func (h *Hub) Broadcast(data any) {
	msg, err := json.Marshal(data)
	if err != nil {
		return
	}

	var dead []*websocket.Conn
	h.mu.RLock()
	for ws := range h.clients {
		if _, err := ws.Write(msg); err != nil {
			log.Printf("ws write: %v", err)
			dead = append(dead, ws)
		}
	}
	h.mu.RUnlock()

	if len(dead) > 0 {
		h.mu.Lock()
		for _, ws := range dead {
			delete(h.clients, ws)
			ws.Close()
		}
		h.mu.Unlock()
	}
}
