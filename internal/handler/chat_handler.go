package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"market-chat/internal/redis"
	"market-chat/internal/services"
	"market-chat/internal/transport/httpdto"
	market_errors "market-chat/pkg/errors"
)

type ChatHandler struct {
	conversations *services.ConversationService
	messages      *services.MessageService
	limiter       *redis.RateLimiter
}

// NewChatHandler wires the chat REST surface. limiter may be nil, in which
// case message sends are not rate limited.
func NewChatHandler(conversations *services.ConversationService, messages *services.MessageService, limiter *redis.RateLimiter) *ChatHandler {
	return &ChatHandler{conversations: conversations, messages: messages, limiter: limiter}
}

// CreateConversation handles POST /chat/conversation. Creating a conversation
// for an existing member pair and product returns the existing record.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req httpdto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	user, ok := services.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	if req.SenderID != user.ID {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("sender mismatch", "FORBIDDEN"))
		return
	}

	conv, err := h.conversations.FindOrCreate(c.Request.Context(), services.FindOrCreateInput{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		ProductID:  req.ProductID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

// ListConversations handles GET /chat/conversations/:userId.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	user, ok := services.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	if c.Param("userId") != user.ID {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("cannot list another user's conversations", "FORBIDDEN"))
		return
	}

	items, err := h.conversations.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversationSlice(items)))
}

// ListMessages handles GET /chat/messages/:conversationId.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	items, err := h.messages.ListForConversation(c.Request.Context(), conversationID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessageSlice(items)))
}

// SendMessage handles POST /chat/message.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	user, ok := services.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	if req.Sender != user.ID {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("sender mismatch", "FORBIDDEN"))
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	if h.limiter != nil {
		res, err := h.limiter.AllowMessage(c.Request.Context(), user.ID)
		if err == nil && !res.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("message rate limit exceeded", "RATE_LIMITED"))
			return
		}
		// limiter errors degrade to allow; the write path must not depend on Redis
	}

	msg, err := h.messages.Append(c.Request.Context(), services.AppendMessageInput{
		ConversationID: conversationID,
		Sender:         req.Sender,
		Text:           req.Text,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

// LeaveConversation handles PUT /chat/conversation/:id/leave.
func (h *ChatHandler) LeaveConversation(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	user, ok := services.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	res, err := h.conversations.Leave(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	message := "left the conversation"
	if res.Deleted {
		message = "conversation and its history deleted"
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.LeaveConversationResponse{
		Deleted: res.Deleted,
		Message: message,
	}))
}

func (h *ChatHandler) fail(c *gin.Context, err error) {
	c.JSON(statusFromErr(err), httpdto.NewErrorResponse(err.Error(), codeFromErr(err)))
}

func statusFromErr(err error) int {
	switch {
	case errors.Is(err, market_errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, market_errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, market_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, market_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market_errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, market_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeFromErr(err error) string {
	switch {
	case errors.Is(err, market_errors.ErrInvalidInput):
		return "INVALID_REQUEST"
	case errors.Is(err, market_errors.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, market_errors.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, market_errors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, market_errors.ErrRateLimited):
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}
