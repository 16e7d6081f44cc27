package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is an append-only chat line. The ID and timestamp are assigned at
// persistence time; there is no edit or delete short of the owning
// conversation being torn down.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}
