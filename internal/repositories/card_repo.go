package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/payward/payward/internal/database"
	"github.com/payward/payward/internal/models"
)

const cardColumns = `id, user_id, provider_id, cardholder_id, last4, brand, exp_month, exp_year, status, created_at`

type CardRepository struct {
	db *database.DB
}

func NewCardRepository(db *database.DB) *CardRepository {
	return &CardRepository{db: db}
}

// Create records a provider-issued card. The provider_id unique constraint
// makes webhook redelivery idempotent.
func (r *CardRepository) Create(ctx context.Context, card *models.Card) (*models.Card, error) {
	query := `
		INSERT INTO cards (id, user_id, provider_id, cardholder_id, last4, brand, exp_month, exp_year, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + cardColumns

	return scanCardRow(r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), card.UserID, card.ProviderID, card.CardholderID,
		card.Last4, card.Brand, card.ExpMonth, card.ExpYear, card.Status,
	))
}

func (r *CardRepository) ListByUser(ctx context.Context, userID string) ([]*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	cards := make([]*models.Card, 0)
	for rows.Next() {
		card, err := scanCardRow(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return cards, nil
}

// UpdateStatus reflects provider-side card state changes.
func (r *CardRepository) UpdateStatus(ctx context.Context, providerID, status string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE cards SET status = $2 WHERE provider_id = $1`, providerID, status)
	return database.MapPostgresError(err)
}

func scanCardRow(scanner rowScanner) (*models.Card, error) {
	var card models.Card
	err := scanner.Scan(
		&card.ID, &card.UserID, &card.ProviderID, &card.CardholderID,
		&card.Last4, &card.Brand, &card.ExpMonth, &card.ExpYear, &card.Status,
		&card.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &card, nil
}
