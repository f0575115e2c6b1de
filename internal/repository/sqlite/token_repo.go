package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prn-tf/helpdesk/internal/domain"
	"github.com/prn-tf/helpdesk/internal/repository"
)

// tokenRepository implements repository.TokenRepository for SQLite.
type tokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new SQLite token repository.
func NewTokenRepository(db *DB) repository.TokenRepository {
	return &tokenRepository{db: db}
}

// GetOrCreate returns the user's token, inserting one with key if none exists.
func (r *tokenRepository) GetOrCreate(ctx context.Context, userID int64, key string) (*domain.Token, bool, error) {
	token := domain.NewToken(key, userID)
	var created bool

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO tokens (token_key, user_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id) DO NOTHING
		`, token.Key, token.UserID, formatTime(token.CreatedAt))
		if err != nil {
			switch {
			case isForeignKeyViolation(err):
				return domain.ErrUserNotFound
			case isTokenKeyViolation(err):
				return domain.ErrTokenKeyConflict
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
	token, err := scanToken(r.db.QueryRowContext(ctx,
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
	var createdAt string
	if err := row.Scan(&token.Key, &token.UserID, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	token.CreatedAt = t
	return token, nil
}

// Ensure tokenRepository implements repository.TokenRepository
var _ repository.TokenRepository = (*tokenRepository)(nil)
