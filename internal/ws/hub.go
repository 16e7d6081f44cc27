package ws

import (
	"sync"

	"market-chat/pkg/logger"
)

// Hub owns the presence registry (user identity -> live connection) and the
// room router (conversation ID -> broadcast group). Both tables are process
// local and rebuilt from reconnects after a restart. Only the connection
// layer touches the hub; HTTP handlers go through persistent stores.
type Hub struct {
	mu sync.RWMutex

	// users is the presence registry. At most one entry per user: a later
	// registration for the same identity overwrites the earlier handle, so
	// only the most recent connection is addressable.
	users map[string]*Client

	// rooms maps conversation ID to the set of connections viewing it.
	rooms map[string]map[*Client]struct{}

	logger *logger.Logger
}

func NewHub(l *logger.Logger) *Hub {
	return &Hub{
		users:  make(map[string]*Client),
		rooms:  make(map[string]map[*Client]struct{}),
		logger: l,
	}
}

// RegisterUser records the client as the addressable connection for its
// user identity, displacing any previous connection for that user.
func (h *Hub) RegisterUser(c *Client) {
	h.mu.Lock()
	prev := h.users[c.UserID]
	h.users[c.UserID] = c
	h.mu.Unlock()

	if prev != nil && prev != c && h.logger != nil {
		h.logger.Debugf("presence overwritten for user %s (reconnect)", c.UserID)
	}
}

// LookupUser returns the current connection for a user, if any.
func (h *Hub) LookupUser(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.users[userID]
	return c, ok
}

// JoinRoom adds the client to a conversation's broadcast group. Joining
// twice has the same effect as joining once, and joining never drops
// membership in previously joined rooms.
func (h *Hub) JoinRoom(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
	c.joinRoom(conversationID)
}

// BroadcastToRoom delivers payload to every member of the room except the
// originating connection.
func (h *Hub) BroadcastToRoom(conversationID string, payload []byte, exclude *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for member := range h.rooms[conversationID] {
		if member == exclude {
			continue
		}
		member.SendMessage(payload)
	}
}

// NotifyUser performs the point-to-point notification send. Delivery is
// suppressed when the recipient is not registered (nothing to do, the
// message itself is durably persisted) or is already viewing the
// conversation. Returns whether a notification was actually queued.
func (h *Hub) NotifyUser(recipientID string, n NotificationPayload) bool {
	// The read lock is held across the send so a concurrent Disconnect
	// cannot close the channel mid-delivery.
	h.mu.RLock()
	defer h.mu.RUnlock()

	recipient, ok := h.users[recipientID]
	if !ok {
		return false
	}
	if recipient.InRoom(n.ConversationID) {
		return false
	}

	payload, err := EncodeFrame(EventNewNotification, n)
	if err != nil {
		return false
	}
	recipient.SendMessage(payload)
	return true
}

// Disconnect removes the client from every room it joined and from the
// presence registry, unless a newer connection already overwrote its entry.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range c.Rooms() {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	if current, ok := h.users[c.UserID]; ok && current == c {
		delete(h.users, c.UserID)
	}

	close(c.Send)
}

// OnlineCount returns the number of registered users.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
