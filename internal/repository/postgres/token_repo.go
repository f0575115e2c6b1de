package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/repository"
)

// tokenRepository implements repository.TokenRepository.
type tokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new PostgreSQL token repository.
func NewTokenRepository(db *DB) repository.TokenRepository {
	return &tokenRepository{db: db}
}

// GetOrCreate returns the user's token, inserting one with key if none exists.
// ON CONFLICT (user_id) DO NOTHING makes concurrent first logins converge on one row.
func (r *tokenRepository) GetOrCreate(ctx context.Context, userID int64, key string) (*domain.Token, bool, error) {
	token := domain.NewToken(key, userID)
	var created bool

	err := r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO tokens (token_key, user_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING
		`, token.Key, token.UserID, token.CreatedAt)
		if err != nil {
			switch {
			case isForeignKeyViolation(err):
				return domain.ErrUserNotFound
			case isTokenKeyViolation(err):
				return domain.ErrTokenKeyConflict
			}
			return fmt.Errorf("failed to insert token: %w", err)
		}
		created = tag.RowsAffected() == 1

		token, err = scanToken(tx.QueryRow(ctx,
			`SELECT token_key, user_id, created_at FROM tokens WHERE user_id = $1`, userID))
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return token, created, nil
}

// GetByKey retrieves a token by key.
func (r *tokenRepository) GetByKey(ctx context.Context, key string) (*domain.Token, error) {
	token, err := scanToken(r.db.Pool.QueryRow(ctx,
		`SELECT token_key, user_id, created_at FROM tokens WHERE token_key = $1`, key))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token by key: %w", err)
	}
	return token, nil
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	token := &domain.Token{}
	if err := row.Scan(&token.Key, &token.UserID, &token.CreatedAt); err != nil {
		return nil, err
	}
	token.CreatedAt = token.CreatedAt.UTC()
	return token, nil
}

// Ensure tokenRepository implements repository.TokenRepository
var _ repository.TokenRepository = (*tokenRepository)(nil)
