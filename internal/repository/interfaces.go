package repository

import (
	"context"

	"github.com/google/uuid"

	"market-chat/internal/domain"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Conversation, error)

	// FindByMembersAndProduct looks up the conversation whose member set
	// equals {userA, userB} (order irrelevant) for the given product.
	FindByMembersAndProduct(ctx context.Context, userA, userB, productID string) (domain.Conversation, error)

	// ListForUser returns conversations the user is currently a member of,
	// most recently updated first.
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)

	// RemoveMember drops userID from the member list. When the list empties
	// the conversation and all of its messages are deleted in the same
	// transaction and deleted is true.
	RemoveMember(ctx context.Context, id uuid.UUID, userID string) (deleted bool, err error)
}

type MessageRepository interface {
	Append(ctx context.Context, m *domain.Message) error
	ListForConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error)
}

type ProductRepository interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}
