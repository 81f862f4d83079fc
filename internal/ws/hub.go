package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"detective_backend/internal/logger"
	"detective_backend/internal/session"
)

// envelope is the wire shape for every server -> client message.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type inbound struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"` // base64 pcm16
}

// Hub tracks room subscribers and fans broadcast events out to them. It is
// the session layer's Broadcaster, and the inbound half routes detective
// audio into the room's orchestrator.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]*Client // roomID -> socketID -> client
	sockets map[string]*Client

	manager *session.Manager
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[string]*Client),
		sockets: make(map[string]*Client),
	}
}

// BindManager attaches the session manager after construction. The hub is the
// manager's broadcaster, so the two reference each other; the hub is built
// first and bound here.
func (h *Hub) BindManager(m *session.Manager) { h.manager = m }

func (h *Hub) Subscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.RoomID] == nil {
		h.rooms[c.RoomID] = make(map[string]*Client)
	}
	h.rooms[c.RoomID][c.SocketID] = c
	h.sockets[c.SocketID] = c
	logger.Debug("ws subscribed", "room", c.RoomID, "user", c.UserID, "socket", c.SocketID)
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[c.RoomID]; ok {
		delete(subs, c.SocketID)
		if len(subs) == 0 {
			delete(h.rooms, c.RoomID)
		}
	}
	delete(h.sockets, c.SocketID)
}

// EmitToRoom sends an event to every subscriber of a room. A subscriber with
// a full send buffer is skipped rather than blocking the whole room.
func (h *Hub) EmitToRoom(roomID, event string, payload any) {
	data, err := json.Marshal(envelope{Type: event, Data: payload})
	if err != nil {
		logger.Error("ws marshal failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		select {
		case c.Send <- data:
		default:
			logger.Warn("ws subscriber lagging, dropping event", "room", roomID, "user", c.UserID, "event", event)
		}
	}
}

func (h *Hub) EmitToSocket(socketID, event string, payload any) {
	data, err := json.Marshal(envelope{Type: event, Data: payload})
	if err != nil {
		logger.Error("ws marshal failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	c, ok := h.sockets[socketID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// HandleMessage routes a client frame. Only the room's detective may push
// audio into the interrogation.
func (h *Hub) HandleMessage(c *Client, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.EmitToSocket(c.SocketID, MsgError, map[string]any{"error": "malformed message"})
		return
	}

	switch msg.Type {
	case MsgPing:
		return

	case MsgAudio, MsgCommit:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		orc, err := h.manager.Room(ctx, c.RoomID)
		if err != nil {
			h.EmitToSocket(c.SocketID, MsgError, map[string]any{"error": "room not found"})
			return
		}
		if orc.DetectiveID() != c.UserID {
			h.EmitToSocket(c.SocketID, MsgError, map[string]any{"error": "only the detective speaks here"})
			return
		}
		if msg.Type == MsgCommit {
			if err := orc.CommitAudio(); err != nil {
				h.EmitToSocket(c.SocketID, MsgError, map[string]any{"error": err.Error()})
			}
			return
		}
		chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			h.EmitToSocket(c.SocketID, MsgError, map[string]any{"error": "audio must be base64"})
			return
		}
		if err := orc.SendAudio(chunk); err != nil {
			h.EmitToSocket(c.SocketID, MsgError, map[string]any{"error": err.Error()})
		}

	default:
		h.EmitToSocket(c.SocketID, MsgError, map[string]any{"error": "unknown message type"})
	}
}
