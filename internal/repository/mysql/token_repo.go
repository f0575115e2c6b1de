package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/repository"
)

// tokenRepository implements repository.TokenRepository for MySQL.
type tokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new MySQL token repository.
func NewTokenRepository(db *DB) repository.TokenRepository {
	return &tokenRepository{db: db}
}

// GetOrCreate returns the user's token, inserting one with key if none exists.
// ON DUPLICATE KEY fires for either unique key, so a key that collides with
// another user's token shows up as "no row for this user" afterwards.
func (r *tokenRepository) GetOrCreate(ctx context.Context, userID int64, key string) (*domain.Token, bool, error) {
	token := domain.NewToken(key, userID)
	var created bool

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO tokens (token_key, user_id, created_at)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE user_id = user_id
		`, token.Key, token.UserID, token.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("failed to insert token: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		created = rows == 1

		token, err = scanToken(tx.QueryRowContext(ctx,
			`SELECT token_key, user_id, created_at FROM tokens WHERE user_id = ?`, userID))
		if err != nil {
			if isNoRows(err) {
				return domain.ErrTokenKeyConflict
			}
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
	token, err := scanToken(r.db.db.QueryRowContext(ctx,
		`SELECT token_key, user_id, created_at FROM tokens WHERE token_key = ?`, key))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token by key: %w", err)
	}
	return token, nil
}

func scanToken(row rowScanner) (*domain.Token, error) {
	token := &domain.Token{}
	if err := row.Scan(&token.Key, &token.UserID, &token.CreatedAt); err != nil {
		return nil, err
	}
	token.CreatedAt = token.CreatedAt.UTC()
	return token, nil
}

// Ensure tokenRepository implements repository.TokenRepository
var _ repository.TokenRepository = (*tokenRepository)(nil)
