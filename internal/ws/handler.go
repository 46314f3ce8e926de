package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/venue-queue-system/internal/queue"
	"github.com/venue-queue-system/pkg/events"
	"github.com/venue-queue-system/pkg/monitoring"
	"github.com/venue-queue-system/pkg/ratelimit"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin checking
	},
}

// Inbound message types.
const (
	msgJoinRoom     = "join-room"
	msgLeaveRoom    = "leave-room"
	msgPong         = "pong"
	msgAddToQueue   = "add-to-queue"
	msgSongFinished = "song-finished"
)

// Outbound message types.
const (
	msgJoinedRoom   = "joined-room"
	msgQueueUpdated = "queue-updated"
	msgPing         = "ping"
	msgError        = "error"
)

type inboundMessage struct {
	Type    string `json:"type"`
	VenueID string `json:"venueId,omitempty"`
	Table   string `json:"table,omitempty"`
	EntryID string `json:"entryId,omitempty"`

	queue.AddSongRequest
}

type outboundMessage struct {
	Type    string      `json:"type"`
	VenueID string      `json:"venue_id,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type client struct {
	id     string
	userID string
	conn   *websocket.Conn

	// writeMu serializes frames; gorilla connections allow one writer at a
	// time.
	writeMu sync.Mutex
}

func (c *client) send(msg outboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Handler is the connection gateway for one process. Room membership,
// heartbeat timers, and connection counts are all process-local; cross-process
// fan-out arrives through the bus subscription in Run.
type Handler struct {
	service *queue.Service
	guard   *ratelimit.Limiter
	bus     events.Bus

	pingInterval time.Duration
	pongTimeout  time.Duration

	mu    sync.RWMutex
	rooms map[string]map[string]*client // venueID -> connID -> client
	venue map[string]string             // connID -> venueID

	heartbeats *heartbeatTable
}

func NewHandler(service *queue.Service, guard *ratelimit.Limiter, bus events.Bus) *Handler {
	return &Handler{
		service:      service,
		guard:        guard,
		bus:          bus,
		pingInterval: 25 * time.Second,
		pongTimeout:  5 * time.Second,
		rooms:        make(map[string]map[string]*client),
		venue:        make(map[string]string),
		heartbeats:   newHeartbeatTable(),
	}
}

// SetHeartbeatIntervals overrides the ping cadence and pong deadline. Tests
// shorten these; call before any connection is accepted.
func (h *Handler) SetHeartbeatIntervals(pingInterval, pongTimeout time.Duration) {
	h.pingInterval = pingInterval
	h.pongTimeout = pongTimeout
}

// Run subscribes to the bus and fans every envelope out to the local room,
// until ctx is cancelled. One subscription per process.
func (h *Handler) Run(ctx context.Context) {
	err := h.bus.Subscribe(ctx, func(envelope events.Envelope) {
		var data interface{}
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			log.Printf("Dropping bus event with unreadable payload for venue %s: %v", envelope.VenueID, err)
			return
		}
		h.fanOut(envelope.VenueID, envelope.EventType, data)
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("Bus subscription ended: %v", err)
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	cl := &client{
		id:     uuid.New().String(),
		userID: c.GetString("user_id"),
		conn:   conn,
	}
	defer h.cleanup(cl)

	// Connection-time join via query parameter.
	if venueID := c.Query("venueId"); venueID != "" {
		h.joinRoom(cl, venueID, c.Query("table"))
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error on %s: %v", cl.id, err)
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(cl, "Could not parse message")
			continue
		}

		h.dispatch(cl, msg)
	}
}

// dispatch routes one inbound message. A failing handler produces an error
// frame for this connection only; it never takes the process down.
func (h *Handler) dispatch(cl *client, msg inboundMessage) {
	switch msg.Type {
	case msgJoinRoom:
		if msg.VenueID == "" {
			h.sendError(cl, "venueId is required to join a room")
			return
		}
		h.joinRoom(cl, msg.VenueID, msg.Table)
	case msgLeaveRoom:
		h.leaveRoom(cl.id)
		h.heartbeats.stop(cl.id)
	case msgPong:
		h.heartbeats.pong(cl.id)
	case msgAddToQueue:
		h.handleAddToQueue(cl, msg)
	case msgSongFinished:
		h.handleSongFinished(cl, msg)
	default:
		h.sendError(cl, "Unknown message type")
	}
}

// joinRoom moves the connection into a venue room, leaving any previous room
// first. The heartbeat starts on first join and is not restarted by re-joins.
func (h *Handler) joinRoom(cl *client, venueID, table string) {
	h.mu.Lock()
	if prev, ok := h.venue[cl.id]; ok {
		if prev == venueID {
			h.mu.Unlock()
			h.sendJoined(cl, venueID, table)
			return
		}
		h.removeFromRoomLocked(prev, cl.id)
	}

	if _, exists := h.rooms[venueID]; !exists {
		h.rooms[venueID] = make(map[string]*client)
	}
	h.rooms[venueID][cl.id] = cl
	h.venue[cl.id] = venueID
	count := len(h.rooms[venueID])
	h.mu.Unlock()

	monitoring.SetRoomConnections(venueID, count)
	h.heartbeats.start(cl.id, h.pingInterval, h.pongTimeout,
		func() error {
			return cl.send(outboundMessage{Type: msgPing})
		},
		func() {
			log.Printf("Connection %s missed pong deadline, reclaiming", cl.id)
			h.cleanup(cl)
		},
	)

	h.sendJoined(cl, venueID, table)
}

func (h *Handler) sendJoined(cl *client, venueID, table string) {
	payload := gin.H{"venue_id": venueID}
	if table != "" {
		payload["table"] = table
	}
	if err := cl.send(outboundMessage{Type: msgJoinedRoom, VenueID: venueID, Data: payload}); err != nil {
		log.Printf("Failed to ack join for %s: %v", cl.id, err)
	}
}

// leaveRoom removes the connection from its room, dropping the venue key when
// the room empties. Safe to call when the connection is in no room.
func (h *Handler) leaveRoom(connID string) {
	h.mu.Lock()
	venueID, ok := h.venue[connID]
	if ok {
		h.removeFromRoomLocked(venueID, connID)
	}
	h.mu.Unlock()
}

func (h *Handler) removeFromRoomLocked(venueID, connID string) {
	delete(h.venue, connID)
	room, exists := h.rooms[venueID]
	if !exists {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, venueID)
		monitoring.RemoveRoom(venueID)
		return
	}
	monitoring.SetRoomConnections(venueID, len(room))
}

// cleanup tears one connection down: room membership, heartbeat timers, and
// the socket itself. Idempotent; runs on graceful close and heartbeat
// reclaim alike.
func (h *Handler) cleanup(cl *client) {
	h.leaveRoom(cl.id)
	h.heartbeats.stop(cl.id)
	cl.conn.Close()
}

func (h *Handler) handleAddToQueue(cl *client, msg inboundMessage) {
	venueID := h.currentVenue(cl.id)
	if venueID == "" {
		h.sendError(cl, "Join a venue before adding songs")
		return
	}

	key := "user:" + cl.userID
	if cl.userID == "" {
		key = "conn:" + cl.id
	}
	if !h.guard.Check(key) {
		h.sendError(cl, "Rate limit exceeded. Please try again later.")
		return
	}

	entry, err := h.service.AddSong(context.Background(), venueID, cl.userID, msg.AddSongRequest)
	if err != nil {
		h.sendError(cl, userMessage(err))
		return
	}

	h.fanOut(venueID, events.EventTypeSongAdded, gin.H{"song": entry})
}

// handleSongFinished funnels the socket "song finished" signal through the
// same advance entry point as the HTTP route, so concurrent signals for one
// entry still resolve to a single winner.
func (h *Handler) handleSongFinished(cl *client, msg inboundMessage) {
	if msg.EntryID == "" {
		h.sendError(cl, "entryId is required")
		return
	}

	result, err := h.service.AdvanceQueue(context.Background(), msg.EntryID)
	if err != nil {
		h.sendError(cl, userMessage(err))
		return
	}

	venueID := h.currentVenue(cl.id)
	if venueID == "" && result.PreviousSong != nil {
		venueID = result.PreviousSong.VenueID.String()
	}
	h.fanOut(venueID, events.EventTypePlayNext, gin.H{
		"previous_song": result.PreviousSong,
		"next_song":     result.NextSong,
	})
}

func (h *Handler) currentVenue(connID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.venue[connID]
}

// EmitToVenue pushes an event to every local socket in the venue's room. Used
// by the HTTP path for an immediate same-process echo alongside the bus
// round-trip.
func (h *Handler) EmitToVenue(venueID string, eventType events.EventType, data interface{}) {
	h.fanOut(venueID, eventType, data)
}

// fanOut writes the event under its specific type and again under the generic
// queue-updated type for consumers that only track the latter.
func (h *Handler) fanOut(venueID string, eventType events.EventType, data interface{}) {
	h.mu.RLock()
	room, exists := h.rooms[venueID]
	if !exists {
		h.mu.RUnlock()
		return
	}
	members := make([]*client, 0, len(room))
	for _, cl := range room {
		members = append(members, cl)
	}
	h.mu.RUnlock()

	specific := outboundMessage{Type: string(eventType), VenueID: venueID, Data: data}
	generic := outboundMessage{Type: msgQueueUpdated, VenueID: venueID, Data: data}

	for _, cl := range members {
		if err := cl.send(specific); err != nil {
			log.Printf("Failed to send %s to %s: %v", eventType, cl.id, err)
			continue
		}
		if eventType == events.EventTypeQueueUpdated {
			continue
		}
		if err := cl.send(generic); err != nil {
			log.Printf("Failed to send %s to %s: %v", msgQueueUpdated, cl.id, err)
		}
	}
}

// ConnectionCount reports this process's member count for a venue. Not a
// cluster-wide figure.
func (h *Handler) ConnectionCount(venueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[venueID])
}

// ListActiveVenues reports venues with at least one local connection.
func (h *Handler) ListActiveVenues() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	venues := make([]string, 0, len(h.rooms))
	for venueID := range h.rooms {
		venues = append(venues, venueID)
	}
	return venues
}

// RoomCounts snapshots local per-venue connection counts for the health
// endpoint.
func (h *Handler) RoomCounts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[string]int, len(h.rooms))
	for venueID, room := range h.rooms {
		counts[venueID] = len(room)
	}
	return counts
}

func (h *Handler) sendError(cl *client, message string) {
	if err := cl.send(outboundMessage{Type: msgError, Message: message}); err != nil {
		log.Printf("Failed to send error to %s: %v", cl.id, err)
	}
}

// userMessage strips internal detail from errors shown over the socket.
func userMessage(err error) string {
	switch err.(type) {
	case *queue.ValidationError, *queue.NotFoundError, *queue.InvalidStateError:
		return err.Error()
	default:
		return "Something went wrong. Please try again."
	}
}
