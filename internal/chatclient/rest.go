package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"market-chat/internal/transport/httpdto"
	market_errors "market-chat/pkg/errors"
)

// API is the REST side of a chat session: conversation and message CRUD
// against the chat endpoints.
type API struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *API) CreateConversation(ctx context.Context, senderID, receiverID, productID string) (httpdto.ConversationResponse, error) {
	return doJSON[httpdto.ConversationResponse](ctx, a, http.MethodPost, "/chat/conversation",
		httpdto.CreateConversationRequest{SenderID: senderID, ReceiverID: receiverID, ProductID: productID})
}

func (a *API) Conversations(ctx context.Context, userID string) ([]httpdto.ConversationResponse, error) {
	return doJSON[[]httpdto.ConversationResponse](ctx, a, http.MethodGet, "/chat/conversations/"+userID, nil)
}

func (a *API) Messages(ctx context.Context, conversationID string) ([]httpdto.MessageResponse, error) {
	return doJSON[[]httpdto.MessageResponse](ctx, a, http.MethodGet, "/chat/messages/"+conversationID, nil)
}

func (a *API) SendMessage(ctx context.Context, conversationID, sender, text string) (httpdto.MessageResponse, error) {
	return doJSON[httpdto.MessageResponse](ctx, a, http.MethodPost, "/chat/message",
		httpdto.SendMessageRequest{ConversationID: conversationID, Sender: sender, Text: text})
}

func (a *API) Leave(ctx context.Context, conversationID string) (httpdto.LeaveConversationResponse, error) {
	return doJSON[httpdto.LeaveConversationResponse](ctx, a, http.MethodPut, "/chat/conversation/"+conversationID+"/leave", nil)
}

func doJSON[T any](ctx context.Context, a *API, method, path string, body any) (T, error) {
	var zero T

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return zero, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, &buf)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.Token)

	res, err := a.HTTP.Do(req)
	if err != nil {
		return zero, err
	}
	defer res.Body.Close()

	var envelope httpdto.Response[T]
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}

	if res.StatusCode == http.StatusNotFound {
		return zero, market_errors.ErrNotFound
	}
	if res.StatusCode != http.StatusOK || !envelope.Success {
		if envelope.Error != "" {
			return zero, fmt.Errorf("%s: %s", envelope.Code, envelope.Error)
		}
		return zero, fmt.Errorf("request failed with status %d", res.StatusCode)
	}
	return envelope.Data, nil
}
