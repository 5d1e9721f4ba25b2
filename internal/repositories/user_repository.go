package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/database"
	"github.com/preetsinghmakkar/SkillSwap/internal/models"
)

// UserRepository owns the time_balance column of users. Profiles live in
// the user service; a row here is created on first credit movement.
type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// AdjustBalanceTx adds delta to the user's balance inside tx, creating the
// row when it does not exist yet.
func (r *UserRepository) AdjustBalanceTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID, delta models.Credit) error {
	const query = `
	INSERT INTO users (id, time_balance, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE
	SET time_balance = users.time_balance + excluded.time_balance,
		updated_at = excluded.updated_at
	`

	if _, err := tx.ExecContext(ctx, query, userID, delta, time.Now().UTC()); err != nil {
		return fmt.Errorf("adjust balance for %s: %w", userID, err)
	}
	return nil
}

// GetBalance returns the user's balance. Unknown users have a zero balance.
func (r *UserRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	return r.getBalance(ctx, r.db, userID)
}

func (r *UserRepository) GetBalanceTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*models.UserBalance, error) {
	return r.getBalance(ctx, tx, userID)
}

func (r *UserRepository) getBalance(ctx context.Context, q DBTX, userID uuid.UUID) (*models.UserBalance, error) {
	const query = `SELECT time_balance FROM users WHERE id = $1`

	balance := &models.UserBalance{UserID: userID}
	err := q.QueryRowContext(ctx, query, userID).Scan(&balance.TimeBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return balance, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}
