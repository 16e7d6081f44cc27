package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"market-chat/internal/domain"
	market_errors "market-chat/pkg/errors"
)

type PostgresConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	now := time.Now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, members, product_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Members, c.ProductID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRow(ctx,
		`SELECT id, members, product_id, created_at, updated_at
		 FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.Members, &c.ProductID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Conversation{}, market_errors.ErrNotFound
		}
		return domain.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) FindByMembersAndProduct(ctx context.Context, userA, userB, productID string) (domain.Conversation, error) {
	pair := []string{userA, userB}

	var c domain.Conversation
	// @> plus <@ gives set equality regardless of stored order.
	err := r.db.QueryRow(ctx,
		`SELECT id, members, product_id, created_at, updated_at
		 FROM conversations
		 WHERE product_id = $1 AND members @> $2 AND members <@ $2
		 LIMIT 1`, productID, pair).
		Scan(&c.ID, &c.Members, &c.ProductID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Conversation{}, market_errors.ErrNotFound
		}
		return domain.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, members, product_id, created_at, updated_at
		 FROM conversations
		 WHERE members @> ARRAY[$1]::text[]
		 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Members, &c.ProductID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresConversationRepository) RemoveMember(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// Row lock serializes the two participants racing to leave; the loser of
	// a full teardown sees no row and gets ErrNotFound.
	var members []string
	err = tx.QueryRow(ctx,
		`SELECT members FROM conversations WHERE id = $1 FOR UPDATE`, id).
		Scan(&members)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, market_errors.ErrNotFound
		}
		return false, err
	}

	remaining := make([]string, 0, len(members))
	for _, m := range members {
		if m != userID {
			remaining = append(remaining, m)
		}
	}

	if len(remaining) == 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
			return false, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id); err != nil {
			return false, err
		}
		return true, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET members = $2, updated_at = $3 WHERE id = $1`,
		id, remaining, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return false, tx.Commit(ctx)
}
