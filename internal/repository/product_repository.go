package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"market-chat/internal/domain"
)

// PostgresProductRepository is a read-only view of the product catalog, used
// to embed listing details into conversation responses. Product writes happen
// in the marketplace service proper.
type PostgresProductRepository struct {
	db *pgxpool.Pool
}

func NewProductRepository(db *pgxpool.Pool) ProductRepository {
	return &PostgresProductRepository{db: db}
}

func (r *PostgresProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, name, price, image_url, seller_id
		 FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.SellerID); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
