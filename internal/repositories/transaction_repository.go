package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/database"
	"github.com/preetsinghmakkar/SkillSwap/internal/models"
)

type TransactionRepository struct {
	db *database.DB
}

func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// InsertTx appends txn to the ledger inside tx.
func (r *TransactionRepository) InsertTx(ctx context.Context, tx *sql.Tx, txn *models.TimeTransaction) error {
	const query = `
	INSERT INTO time_transactions (
		id,
		from_user,
		to_user,
		amount,
		duration_minutes,
		session_id,
		type,
		status,
		description,
		created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var sessionID uuid.NullUUID
	if txn.SessionID != nil {
		sessionID = uuid.NullUUID{UUID: *txn.SessionID, Valid: true}
	}

	_, err := tx.ExecContext(
		ctx,
		query,
		txn.ID,
		txn.FromUser,
		txn.ToUser,
		txn.Amount,
		txn.DurationMinutes,
		sessionID,
		txn.Type,
		txn.Status,
		txn.Description,
		txn.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert time transaction: %w", err)
	}
	return nil
}

// ListByUser returns every ledger entry the user sent or received, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TimeTransaction, error) {
	return r.list(ctx, `WHERE from_user = $1 OR to_user = $1`, userID)
}

// ListBySession returns the ledger entries recorded for a session.
func (r *TransactionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.TimeTransaction, error) {
	return r.list(ctx, `WHERE session_id = $1`, sessionID)
}

func (r *TransactionRepository) list(ctx context.Context, where string, arg any) ([]models.TimeTransaction, error) {
	query := `
	SELECT
		id,
		from_user,
		to_user,
		amount,
		duration_minutes,
		session_id,
		type,
		status,
		description,
		created_at
	FROM time_transactions
	` + where + `
	ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query time transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]models.TimeTransaction, 0)
	for rows.Next() {
		var (
			t         models.TimeTransaction
			sessionID uuid.NullUUID
		)
		if err := rows.Scan(
			&t.ID,
			&t.FromUser,
			&t.ToUser,
			&t.Amount,
			&t.DurationMinutes,
			&sessionID,
			&t.Type,
			&t.Status,
			&t.Description,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan time transaction: %w", err)
		}
		if sessionID.Valid {
			id := sessionID.UUID
			t.SessionID = &id
		}
		t.CreatedAt = t.CreatedAt.UTC()
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate time transactions: %w", err)
	}
	return txns, nil
}
