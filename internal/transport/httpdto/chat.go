package httpdto

import (
	"time"

	"market-chat/internal/domain"
)

type CreateConversationRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	ProductID  string `json:"productId"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
}

type ProductResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl"`
	SellerID string `json:"sellerId"`
}

type ConversationResponse struct {
	ID        string           `json:"id"`
	Members   []string         `json:"members"`
	ProductID string           `json:"productId"`
	Product   *ProductResponse `json:"product,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

type LeaveConversationResponse struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

func FromConversation(c domain.Conversation) ConversationResponse {
	res := ConversationResponse{
		ID:        c.ID.String(),
		Members:   c.Members,
		ProductID: c.ProductID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Product != nil {
		res.Product = &ProductResponse{
			ID:       c.Product.ID,
			Name:     c.Product.Name,
			Price:    c.Product.Price,
			ImageURL: c.Product.ImageURL,
			SellerID: c.Product.SellerID,
		}
	}
	return res
}

func FromConversationSlice(items []domain.Conversation) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(items))
	for _, c := range items {
		out = append(out, FromConversation(c))
	}
	return out
}

func FromMessage(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Sender:         m.Sender,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
	}
}

func FromMessageSlice(items []domain.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(items))
	for _, m := range items {
		out = append(out, FromMessage(m))
	}
	return out
}
