package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation pairs exactly two user identities with one product. The member
// list shrinks as parties leave; an empty member list means the conversation
// no longer exists.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Members   []string  `json:"members"`
	ProductID string    `json:"productId"`
	Product   *Product  `json:"product,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasMember reports whether userID is a current member.
func (c Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// OtherMember returns the member that is not userID, or "" when the
// counterpart already left.
func (c Conversation) OtherMember(userID string) string {
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}
