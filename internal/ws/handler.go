package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"market-chat/internal/redis"
	"market-chat/internal/services"
	"market-chat/internal/transport/httpdto"
	"market-chat/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests to WebSocket connections and pumps frames
// between the connection and the hub.
type Handler struct {
	hub     *Hub
	auth    *services.AuthService
	limiter *redis.RateLimiter
	logger  *logger.Logger
}

func NewHandler(hub *Hub, auth *services.AuthService, limiter *redis.RateLimiter, l *logger.Logger) *Handler {
	return &Handler{hub: hub, auth: auth, limiter: limiter, logger: l}
}

// Connect handles GET /ws.
func (h *Handler) Connect(c *gin.Context) {
	token := h.extractToken(c)
	claims, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	if h.limiter != nil {
		res, err := h.limiter.AllowConnect(c.Request.Context(), claims.UserID)
		if err == nil && !res.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("connection rate limit exceeded", "RATE_LIMITED"))
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("websocket upgrade failed for user %s: %s", claims.UserID, err)
		}
		return
	}

	client := NewClient(conn, claims.UserID)
	if h.logger != nil {
		h.logger.Infof("websocket connected user=%s client=%s", client.UserID, client.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.WriteLoop(ctx)

	h.readLoop(client, conn)

	h.hub.Disconnect(client)
	client.Close()
	if h.logger != nil {
		h.logger.Infof("websocket disconnected user=%s client=%s", client.UserID, client.ID)
	}
}

func (h *Handler) readLoop(client *Client, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				if h.logger != nil {
					h.logger.Errorf("websocket read error user=%s: %s", client.UserID, err)
				}
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleFrame(client, raw)
	}
}

func (h *Handler) handleFrame(client *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		if h.logger != nil {
			h.logger.Debugf("dropping malformed frame from user %s", client.UserID)
		}
		return
	}

	switch frame.Event {
	case EventAddUser:
		var p AddUserPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return
		}
		// Registration is only honored for the authenticated identity.
		if p.UserID != client.UserID {
			if h.logger != nil {
				h.logger.Debugf("addUser for %s ignored on connection of %s", p.UserID, client.UserID)
			}
			return
		}
		h.hub.RegisterUser(client)

	case EventJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		h.hub.JoinRoom(client, p.ConversationID)

	case EventSendMessage:
		var p MessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return
		}
		if p.Sender != client.UserID || p.ConversationID == "" {
			return
		}
		h.dispatchMessage(client, p)

	default:
		if h.logger != nil {
			h.logger.Debugf("unknown event %q from user %s", frame.Event, client.UserID)
		}
	}
}

// dispatchMessage fans the already-persisted message out to the room and
// fires the out-of-band notification at the receiving party.
func (h *Handler) dispatchMessage(sender *Client, p MessagePayload) {
	receiverID := p.ReceiverID

	// receiverId is routing metadata; the room echo carries only the
	// message itself.
	p.ReceiverID = ""
	payload, err := EncodeFrame(EventReceiveMessage, p)
	if err != nil {
		return
	}
	h.hub.BroadcastToRoom(p.ConversationID, payload, sender)

	if receiverID == "" {
		return
	}
	h.hub.NotifyUser(receiverID, NotificationPayload{
		SenderName:     p.SenderName,
		Text:           p.Text,
		ConversationID: p.ConversationID,
		CreatedAt:      p.CreatedAt,
	})
}

func (h *Handler) extractToken(c *gin.Context) string {
	// Check query parameter
	token := c.Query("token")
	if token != "" {
		return token
	}

	// Check Authorization header
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return ""
}
