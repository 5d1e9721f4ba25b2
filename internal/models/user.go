package models

import "github.com/google/uuid"

// UserBalance is the slice of a user record this service reads and writes.
type UserBalance struct {
	UserID      uuid.UUID `db:"id" json:"userId"`
	TimeBalance Credit    `db:"time_balance" json:"timeBalance"`
}
