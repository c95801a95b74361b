package ws

import (
	"context"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"groupchat/internal/domain"
	"groupchat/internal/logger"
	"groupchat/internal/realtime"
)

// PresenceStore persists presence transitions and serves the unread
// summary pushed on connect. service.UserService implements it.
type PresenceStore interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	UnreadSummary(ctx context.Context, userID string) ([]domain.UnreadEntry, error)
}

// UnreadSummaryPayload is pushed to a connection right after it connects.
type UnreadSummaryPayload struct {
	Conversations []domain.UnreadEntry `json:"conversations"`
}

// Controller owns the presence registry and runs the connect and
// disconnect sequences around each connection.
type Controller struct {
	hub      *realtime.Hub
	registry *realtime.Registry
	presence PresenceStore
	router   *Router

	// presenceLocks serialize the stored online flag per user.
	presenceLocks [32]sync.Mutex
}

func NewController(hub *realtime.Hub, presence PresenceStore, router *Router) *Controller {
	return &Controller{hub: hub, registry: hub.Registry(), presence: presence, router: router}
}

// Connect registers an authenticated connection, tells everyone who is
// online and pushes the user's unread summary to the new connection.
func (c *Controller) Connect(ctx context.Context, conn realtime.Conn) {
	userID := conn.UserID()
	if first := c.registry.Register(userID, conn); first {
		c.syncPresence(ctx, userID)
	}
	logger.Log.Info("ws_connected", zap.String("user_id", userID), zap.String("conn_id", conn.ID()))
	c.hub.BroadcastOnlineUsers()

	if !c.registry.IsOnline(userID) {
		return
	}
	entries, err := c.presence.UnreadSummary(ctx, userID)
	if err != nil {
		logger.Log.Warn("unread_summary_failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	c.hub.EmitToConn(conn, realtime.EventUnreadSummary, "", UnreadSummaryPayload{Conversations: entries})
}

// Disconnect drops the connection's registry entry and then its rooms, so
// a concurrent JoinUser cannot re-add it. The online list is re-broadcast
// only when the user's last connection goes away.
func (c *Controller) Disconnect(ctx context.Context, conn realtime.Conn) {
	userID := conn.UserID()
	offline := c.registry.Unregister(userID, conn)
	c.hub.LeaveAllRooms(conn)
	if !offline {
		logger.Log.Info("ws_disconnected", zap.String("user_id", userID), zap.String("conn_id", conn.ID()))
		return
	}
	c.syncPresence(ctx, userID)
	if c.router != nil {
		c.router.limiter.forget(userID)
	}
	logger.Log.Info("ws_user_offline", zap.String("user_id", userID))
	c.hub.BroadcastOnlineUsers()
}

// syncPresence writes the registry's current view of userID to the store.
// Writes for one user are serialized and each reads the registry under the
// lock, so the last write always matches the registry.
func (c *Controller) syncPresence(ctx context.Context, userID string) {
	mu := c.presenceLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if c.registry.IsOnline(userID) {
		if err := c.presence.MarkOnline(ctx, userID); err != nil {
			logger.Log.Warn("presence_mark_online_failed", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	if err := c.presence.MarkOffline(ctx, userID); err != nil {
		logger.Log.Warn("presence_mark_offline_failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (c *Controller) presenceLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &c.presenceLocks[h.Sum32()%uint32(len(c.presenceLocks))]
}

// serve runs one client until its socket closes.
func (c *Controller) serve(ctx context.Context, client *Client) {
	go client.writePump()
	c.Connect(ctx, client)
	defer func() {
		c.Disconnect(ctx, client)
		client.Close()
	}()
	client.readPump(func(ev *realtime.Event) {
		c.router.Dispatch(ctx, client, ev)
	})
}
