package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"market-chat/internal/domain"
	"market-chat/internal/repository"
	market_errors "market-chat/pkg/errors"
)

type MessageService struct {
	repo repository.MessageRepository
}

func NewMessageService(repo repository.MessageRepository) *MessageService {
	return &MessageService{repo: repo}
}

type AppendMessageInput struct {
	ConversationID uuid.UUID
	Sender         string
	Text           string
}

// Append persists a chat line and returns it with the server-assigned ID and
// timestamp. Empty or whitespace-only text is rejected before any write.
func (s *MessageService) Append(ctx context.Context, in AppendMessageInput) (domain.Message, error) {
	if in.ConversationID == uuid.Nil || strings.TrimSpace(in.Sender) == "" {
		return domain.Message{}, market_errors.ErrInvalidInput
	}
	if strings.TrimSpace(in.Text) == "" {
		return domain.Message{}, market_errors.ErrInvalidInput
	}

	msg := domain.Message{
		ConversationID: in.ConversationID,
		Sender:         in.Sender,
		Text:           in.Text,
	}
	if err := s.repo.Append(ctx, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ListForConversation returns the full transcript in persistence order.
func (s *MessageService) ListForConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	if conversationID == uuid.Nil {
		return nil, market_errors.ErrInvalidInput
	}
	return s.repo.ListForConversation(ctx, conversationID)
}
