package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"market-chat/internal/domain"
	"market-chat/internal/repository"
	market_errors "market-chat/pkg/errors"
)

type ConversationService struct {
	repo     repository.ConversationRepository
	products repository.ProductRepository
}

func NewConversationService(repo repository.ConversationRepository, products repository.ProductRepository) *ConversationService {
	return &ConversationService{repo: repo, products: products}
}

type FindOrCreateInput struct {
	SenderID   string
	ReceiverID string
	ProductID  string
}

func (in FindOrCreateInput) validate() error {
	if strings.TrimSpace(in.SenderID) == "" ||
		strings.TrimSpace(in.ReceiverID) == "" ||
		strings.TrimSpace(in.ProductID) == "" {
		return market_errors.ErrInvalidInput
	}
	if in.SenderID == in.ReceiverID {
		return market_errors.ErrInvalidInput
	}
	return nil
}

// FindOrCreate returns the existing conversation for the member pair and
// product, or persists a new one. Member order never matters for the lookup.
func (s *ConversationService) FindOrCreate(ctx context.Context, in FindOrCreateInput) (domain.Conversation, error) {
	if err := in.validate(); err != nil {
		return domain.Conversation{}, err
	}

	existing, err := s.repo.FindByMembersAndProduct(ctx, in.SenderID, in.ReceiverID, in.ProductID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, market_errors.ErrNotFound) {
		return domain.Conversation{}, err
	}

	conv := domain.Conversation{
		ID:        uuid.New(),
		Members:   []string{in.SenderID, in.ReceiverID},
		ProductID: in.ProductID,
	}
	if err := s.repo.Create(ctx, &conv); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// ListForUser returns the user's conversations, most recent first, with
// product details embedded where the product still resolves.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, market_errors.ErrInvalidInput
	}

	conversations, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(conversations))
	for _, c := range conversations {
		ids = append(ids, c.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range conversations {
		if p, ok := products[conversations[i].ProductID]; ok {
			conversations[i].Product = &p
		}
	}
	return conversations, nil
}

// GetByID fetches one conversation.
func (s *ConversationService) GetByID(ctx context.Context, id uuid.UUID) (domain.Conversation, error) {
	return s.repo.GetByID(ctx, id)
}

type LeaveResult struct {
	Deleted bool
}

// Leave removes userID from the conversation. The last member out tears the
// conversation down together with its message history. A concurrent second
// leave against an already-deleted conversation surfaces ErrNotFound, never
// a partial delete.
func (s *ConversationService) Leave(ctx context.Context, id uuid.UUID, userID string) (LeaveResult, error) {
	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return LeaveResult{}, err
	}
	if !conv.HasMember(userID) {
		return LeaveResult{}, market_errors.ErrForbidden
	}

	deleted, err := s.repo.RemoveMember(ctx, id, userID)
	if err != nil {
		return LeaveResult{}, err
	}
	return LeaveResult{Deleted: deleted}, nil
}
