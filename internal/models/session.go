package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusConfirmed  SessionStatus = "confirmed"
	SessionStatusInProgress SessionStatus = "in-progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusCancelled  SessionStatus = "cancelled"
	SessionStatusDisputed   SessionStatus = "disputed"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusConfirmed, SessionStatusInProgress,
		SessionStatusCompleted, SessionStatusCancelled, SessionStatusDisputed:
		return true
	}
	return false
}

// transitions lists the forward edges of the lifecycle plus the
// cancelled/disputed escapes. in-progress -> in-progress is a rejoin.
var transitions = map[SessionStatus][]SessionStatus{
	SessionStatusPending:    {SessionStatusConfirmed, SessionStatusCancelled},
	SessionStatusConfirmed:  {SessionStatusInProgress, SessionStatusCancelled},
	SessionStatusInProgress: {SessionStatusInProgress, SessionStatusCompleted, SessionStatusDisputed},
	SessionStatusCompleted:  {SessionStatusDisputed},
}

// CanTransition reports whether a session in status from may move to to.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Other returns the opposite side of a 1:1 session.
func (r Role) Other() Role {
	if r == RoleTeacher {
		return RoleStudent
	}
	return RoleTeacher
}

// Participant is the presence record for one role of a session.
type Participant struct {
	JoinedAt  *time.Time `db:"joined_at" json:"joinedAt,omitempty"`
	LeftAt    *time.Time `db:"left_at" json:"leftAt,omitempty"`
	TimeSpent int        `db:"time_spent" json:"timeSpent"` // minutes
}

// Present reports whether the participant joined and has not left since.
func (p Participant) Present() bool {
	if p.JoinedAt == nil {
		return false
	}
	return p.LeftAt == nil || p.JoinedAt.After(*p.LeftAt)
}

// HasLeft reports whether the participant recorded a departure and has not
// rejoined after it.
func (p Participant) HasLeft() bool {
	return p.LeftAt != nil && !p.Present()
}

type Cancellation struct {
	CancelledBy uuid.UUID `json:"cancelledBy"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Session struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TeacherID uuid.UUID `db:"teacher_id" json:"teacherId"`
	StudentID uuid.UUID `db:"student_id" json:"studentId"`

	Title string `db:"title" json:"title"`
	Skill string `db:"skill" json:"skill"`

	Status         SessionStatus `db:"status" json:"status"`
	ScheduledTime  time.Time     `db:"scheduled_time" json:"scheduledTime"`
	Duration       int           `db:"duration" json:"duration"`              // planned minutes
	ActualDuration int           `db:"actual_duration" json:"actualDuration"` // observed minutes

	RoomID        *string    `db:"room_id" json:"roomId,omitempty"`
	CallStartedAt *time.Time `db:"call_started_at" json:"callStartedAt,omitempty"`
	CallEndedAt   *time.Time `db:"call_ended_at" json:"callEndedAt,omitempty"`

	Teacher Participant `json:"teacher"`
	Student Participant `json:"student"`

	TimeCredit   Credit        `db:"time_credit" json:"timeCredit"`
	Cancellation *Cancellation `json:"cancellation,omitempty"`
	DisputeNote  *string       `db:"dispute_reason" json:"disputeReason,omitempty"`

	Version   int64     `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// RoleOf returns the role userID plays in the session.
func (s *Session) RoleOf(userID uuid.UUID) (Role, bool) {
	switch userID {
	case s.TeacherID:
		return RoleTeacher, true
	case s.StudentID:
		return RoleStudent, true
	}
	return "", false
}

// Participant returns a pointer to the presence record for role.
func (s *Session) Participant(role Role) *Participant {
	if role == RoleTeacher {
		return &s.Teacher
	}
	return &s.Student
}

func (s Session) String() string {
	return fmt.Sprintf(
		"Session(id=%s, status=%s, actualDuration=%d, timeCredit=%s, version=%d)",
		s.ID,
		s.Status,
		s.ActualDuration,
		s.TimeCredit,
		s.Version,
	)
}

// ElapsedMinutes rounds the interval [from, to] up to whole minutes.
// Negative intervals count as zero.
func ElapsedMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}
