package dtos

import (
	"time"

	"github.com/preetsinghmakkar/SkillSwap/internal/models"
)

// Create session request, sent by the student
type CreateSessionRequest struct {
	TeacherID     string    `json:"teacherId" binding:"required,uuid"`
	Title         string    `json:"title" binding:"required,max=200"`
	Skill         string    `json:"skill" binding:"required,max=100"`
	ScheduledTime time.Time `json:"scheduledTime" binding:"required"`
	Duration      int       `json:"duration" binding:"required,min=1,max=480"` // minutes
}

// Start session request. An empty room id lets the server mint one.
type StartSessionRequest struct {
	RoomID string `json:"roomId" binding:"omitempty,max=128"`
}

type CancelSessionRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type DisputeSessionRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type ListSessionsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending confirmed in-progress completed cancelled disputed"`
}

type SessionListResponse struct {
	Sessions []models.Session `json:"sessions"`
}

type BalanceResponse struct {
	UserID      string        `json:"userId"`
	TimeBalance models.Credit `json:"timeBalance"` // hours
}

type TransactionListResponse struct {
	Transactions []models.TimeTransaction `json:"transactions"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}
