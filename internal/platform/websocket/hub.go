// Package websocket pushes live queue updates to station clients. Clients
// subscribe to one or more station topics and receive the full queue
// snapshot for that station whenever the ledger changes, so a station
// re-renders from a complete, ordered set and never needs to merge diffs.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Event is one message pushed to a station client.
type Event struct {
	Type      string          `json:"type"` // e.g. "queue.snapshot"
	Station   string          `json:"station"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound control message from a station client.
type ClientMessage struct {
	Action   string   `json:"action"` // "subscribe" | "unsubscribe"
	Stations []string `json:"stations"`
}

// EventPublisher is the seam between the domain feed and the transport.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one connected station terminal.
type Client struct {
	ID       string
	Stations []string
	Send     chan []byte
	hub      *Hub
	conn     Conn
}

// Hub tracks connected clients and their station subscriptions. All
// operations are safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // station -> set of clients
	all     map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds a client and subscribes it to its initial stations.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, st := range client.Stations {
		if h.clients[st] == nil {
			h.clients[st] = make(map[*Client]struct{})
		}
		h.clients[st][client] = struct{}{}
	}
}

// Unregister removes a client from every station and closes its Send
// channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, st := range client.Stations {
		if subscribers, ok := h.clients[st]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, st)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds stations to an already-registered client.
func (h *Hub) Subscribe(client *Client, stations []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, st := range stations {
		if h.clients[st] == nil {
			h.clients[st] = make(map[*Client]struct{})
		}
		h.clients[st][client] = struct{}{}
	}
	client.Stations = append(client.Stations, stations...)
}

// Unsubscribe removes stations from an already-registered client.
func (h *Hub) Unsubscribe(client *Client, stations []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(stations))
	for _, st := range stations {
		removeSet[st] = struct{}{}
		if subscribers, ok := h.clients[st]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, st)
			}
		}
	}

	remaining := make([]string, 0, len(client.Stations))
	for _, st := range client.Stations {
		if _, rm := removeSet[st]; !rm {
			remaining = append(remaining, st)
		}
	}
	client.Stations = remaining
}

// ProcessMessage dispatches an inbound control message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Stations)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Stations)
	}
}

// Broadcast delivers an event to every client watching the given station.
// A client that cannot keep up is skipped, never blocked on.
func (h *Hub) Broadcast(station string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[station] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// Publish implements EventPublisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Station, event)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// StationCount returns the number of clients watching a station.
func (h *Hub) StationCount(station string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[station])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections and pumps messages between the socket
// and the hub.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint.
func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the connection, registers the client and starts the
// read/write pumps. Initial stations may be passed as ?stations=lab,reception.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:       uuid.New().String(),
		Stations: splitStations(c.QueryParam("stations")),
		Send:     make(chan []byte, 256),
		hub:      wsh.hub,
		conn:     &gorillaConnAdapter{ws},
	}

	wsh.hub.Register(client)

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)

	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}

		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

func splitStations(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
