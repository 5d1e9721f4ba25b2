package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/preetsinghmakkar/SkillSwap/internal/metrics"
	"github.com/preetsinghmakkar/SkillSwap/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BalanceStore is the user balance collaborator. Adjustments run inside the
// caller's transaction.
type BalanceStore interface {
	AdjustBalanceTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID, delta models.Credit) error
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
}

type TransactionStore interface {
	InsertTx(ctx context.Context, tx *sql.Tx, txn *models.TimeTransaction) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TimeTransaction, error)
}

// LedgerService moves time credit between users. It never touches session
// status; the caller owns the surrounding transaction.
type LedgerService struct {
	balances BalanceStore
	txns     TransactionStore
	now      func() time.Time
	log      zerolog.Logger
}

func NewLedgerService(balances BalanceStore, txns TransactionStore) *LedgerService {
	return &LedgerService{
		balances: balances,
		txns:     txns,
		now:      time.Now,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// Settle debits the student and credits the teacher for minutes of session
// time and appends one completed transaction, all inside tx. It returns a nil
// transaction when the minutes round to no credit. Any failure is reported
// as ErrLedgerFailure and the caller must roll tx back.
func (l *LedgerService) Settle(
	ctx context.Context,
	tx *sql.Tx,
	teacherID uuid.UUID,
	studentID uuid.UUID,
	sessionID uuid.UUID,
	minutes int,
) (*models.TimeTransaction, error) {
	credit := models.CreditForMinutes(minutes)
	if credit <= 0 {
		metrics.Settlements.WithLabelValues("skipped").Inc()
		l.log.Info().
			Str("session_id", sessionID.String()).
			Int("minutes", minutes).
			Msg("no credit earned, settlement skipped")
		return nil, nil
	}

	if err := l.balances.AdjustBalanceTx(ctx, tx, studentID, -credit); err != nil {
		return nil, l.fail(sessionID, fmt.Errorf("debit student: %w", err))
	}
	if err := l.balances.AdjustBalanceTx(ctx, tx, teacherID, credit); err != nil {
		return nil, l.fail(sessionID, fmt.Errorf("credit teacher: %w", err))
	}

	sid := sessionID
	txn := &models.TimeTransaction{
		ID:              uuid.New(),
		FromUser:        studentID,
		ToUser:          teacherID,
		Amount:          credit,
		DurationMinutes: minutes,
		SessionID:       &sid,
		Type:            models.TransactionTypeSession,
		Status:          models.TransactionStatusCompleted,
		Description:     fmt.Sprintf("session %s: %d minutes", sessionID, minutes),
		CreatedAt:       l.now().UTC(),
	}
	if err := l.txns.InsertTx(ctx, tx, txn); err != nil {
		return nil, l.fail(sessionID, err)
	}

	metrics.Settlements.WithLabelValues("settled").Inc()
	l.log.Info().
		Str("session_id", sessionID.String()).
		Str("amount", credit.String()).
		Int("minutes", minutes).
		Msg("session settled")
	return txn, nil
}

func (l *LedgerService) fail(sessionID uuid.UUID, err error) error {
	metrics.Settlements.WithLabelValues("failed").Inc()
	l.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("settlement failed")
	return fmt.Errorf("%w: %v", apperrors.ErrLedgerFailure, err)
}

func (l *LedgerService) Balance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	return l.balances.GetBalance(ctx, userID)
}

func (l *LedgerService) Transactions(ctx context.Context, userID uuid.UUID) ([]models.TimeTransaction, error) {
	return l.txns.ListByUser(ctx, userID)
}
