package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeSession    TransactionType = "session"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeSystem     TransactionType = "system"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// TimeTransaction is an append-only ledger entry moving credit between users.
type TimeTransaction struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	FromUser        uuid.UUID         `db:"from_user" json:"fromUser"`
	ToUser          uuid.UUID         `db:"to_user" json:"toUser"`
	Amount          Credit            `db:"amount" json:"amount"`
	DurationMinutes int               `db:"duration_minutes" json:"durationMinutes"`
	SessionID       *uuid.UUID        `db:"session_id" json:"sessionId,omitempty"`
	Type            TransactionType   `db:"type" json:"type"`
	Status          TransactionStatus `db:"status" json:"status"`
	Description     string            `db:"description" json:"description,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
}
