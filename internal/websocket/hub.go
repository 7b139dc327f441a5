package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/models"
)

const broadcastBuffer = 256

// message is the frame sent to browsers
type message struct {
	Type    string           `json:"type"` // reading or alert
	Payload *models.Envelope `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts envelopes to them.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader

	connected atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the dashboard is served from the same host
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log := logger.WithComponent("websocket")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.updateCount()
			log.Debug().Str("remote", client.remoteAddr()).Msg("client registered")

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
				log.Debug().Str("remote", client.remoteAddr()).Msg("client unregistered")
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					log.Warn().Str("remote", client.remoteAddr()).Msg("client send buffer full, dropping client")
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.updateCount()
}

func (h *Hub) updateCount() {
	h.connected.Store(int64(len(h.clients)))
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

// Broadcast queues env for every connected client. It never blocks; when the
// hub is backed up the envelope is dropped.
func (h *Hub) Broadcast(env *models.Envelope) {
	msg := message{Type: "reading", Payload: env}
	if env.Kind == models.EventAlertRaised {
		msg.Type = "alert"
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log := logger.WithComponent("websocket")
		log.Error().Err(err).Msg("failed to marshal envelope")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		log := logger.WithComponent("websocket")
		log.Warn().Str("kind", string(env.Kind)).Msg("broadcast buffer full, dropping envelope")
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an error response
		log := logger.WithComponent("websocket")
		log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := newClient(h, conn)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
