package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"groupchat/internal/logger"
	"groupchat/internal/metrics"
)

// Hub keeps socket rooms (one per conversation) and fans events out to
// rooms, users and every live connection. Presence comes from the Registry.
type Hub struct {
	registry *Registry

	mu    sync.RWMutex
	rooms map[string]map[string]Conn     // conversation id -> conn id -> conn
	joins map[string]map[string]struct{} // conn id -> conversation ids
}

func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry: registry,
		rooms:    make(map[string]map[string]Conn),
		joins:    make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

// JoinRoom subscribes conn to the conversation's room.
func (h *Hub) JoinRoom(conn Conn, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(conn, conversationID)
}

func (h *Hub) joinLocked(conn Conn, conversationID string) {
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[string]Conn)
		h.rooms[conversationID] = room
	}
	room[conn.ID()] = conn

	set, ok := h.joins[conn.ID()]
	if !ok {
		set = make(map[string]struct{})
		h.joins[conn.ID()] = set
	}
	set[conversationID] = struct{}{}
}

// LeaveRoom unsubscribes conn from the conversation's room.
func (h *Hub) LeaveRoom(conn Conn, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn.ID(), conversationID)
}

func (h *Hub) leaveLocked(connID, conversationID string) {
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if set, ok := h.joins[connID]; ok {
		delete(set, conversationID)
		if len(set) == 0 {
			delete(h.joins, connID)
		}
	}
}

// LeaveAllRooms drops every subscription held by conn.
func (h *Hub) LeaveAllRooms(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conversationID := range h.joins[conn.ID()] {
		h.leaveLocked(conn.ID(), conversationID)
	}
}

// JoinUser subscribes every live connection of userID to the room and
// returns how many were joined. A connection unregistered after the
// snapshot is skipped, so a disconnect racing the join leaves no stale
// member behind.
func (h *Hub) JoinUser(userID, conversationID string) int {
	conns := h.registry.ConnectionsOf(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range conns {
		if !h.registry.has(userID, c.ID()) {
			continue
		}
		h.joinLocked(c, conversationID)
		n++
	}
	return n
}

// LeaveUser unsubscribes every connection of userID from the room.
func (h *Hub) LeaveUser(userID, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID, c := range h.rooms[conversationID] {
		if c.UserID() == userID {
			h.leaveLocked(connID, conversationID)
		}
	}
}

// CloseRoom ejects every member so no further event targets the room.
func (h *Hub) CloseRoom(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID := range h.rooms[conversationID] {
		h.leaveLocked(connID, conversationID)
	}
}

// InRoom reports whether conn is subscribed to the room.
func (h *Hub) InRoom(conn Conn, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][conn.ID()]
	return ok
}

// RoomMembers returns a snapshot of the connections in the room.
func (h *Hub) RoomMembers(conversationID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Conn, 0, len(h.rooms[conversationID]))
	for _, c := range h.rooms[conversationID] {
		out = append(out, c)
	}
	return out
}

// EmitToUser sends to every live connection of userID except the origin
// connection carried by ctx.
func (h *Hub) EmitToUser(ctx context.Context, userID, eventType string, payload any) {
	ev, ok := build(eventType, payload)
	if !ok {
		return
	}
	h.deliver(OriginFrom(ctx), h.registry.ConnectionsOf(userID), ev, metrics.ScopeUser)
}

// EmitToRoom sends to every connection in the conversation's room except
// the origin connection carried by ctx.
func (h *Hub) EmitToRoom(ctx context.Context, conversationID, eventType string, payload any) {
	ev, ok := build(eventType, payload)
	if !ok {
		return
	}
	ev.ConversationID = conversationID
	h.deliver(OriginFrom(ctx), h.RoomMembers(conversationID), ev, metrics.ScopeRoom)
}

// EmitToConn sends to a single connection.
func (h *Hub) EmitToConn(conn Conn, eventType, ref string, payload any) {
	ev, ok := build(eventType, payload)
	if !ok {
		return
	}
	ev.Ref = ref
	h.deliver(nil, []Conn{conn}, ev, metrics.ScopeConn)
}

// BroadcastAll sends to every live connection in the process.
func (h *Hub) BroadcastAll(eventType string, payload any) {
	ev, ok := build(eventType, payload)
	if !ok {
		return
	}
	h.deliver(nil, h.registry.Connections(), ev, metrics.ScopeBroadcast)
}

// BroadcastOnlineUsers pushes the current online user list to everyone.
func (h *Hub) BroadcastOnlineUsers() {
	h.BroadcastAll(EventOnlineUsers, map[string]any{"user_ids": h.registry.OnlineUsers()})
}

func (h *Hub) deliver(skip Conn, conns []Conn, ev *Event, scope string) {
	for _, c := range conns {
		if skip != nil && c.ID() == skip.ID() {
			continue
		}
		if err := c.Send(ev); err != nil {
			logger.Log.Warn("ws_send_dropped",
				zap.String("conn_id", c.ID()),
				zap.String("user_id", c.UserID()),
				zap.String("type", ev.Type),
				zap.Error(err))
			continue
		}
		metrics.EventsEmitted.WithLabelValues(scope).Inc()
	}
}

func build(eventType string, payload any) (*Event, bool) {
	ev, err := NewEvent(eventType, payload)
	if err != nil {
		logger.Log.Error("ws_event_marshal_failed", zap.String("type", eventType), zap.Error(err))
		return nil, false
	}
	return ev, true
}
