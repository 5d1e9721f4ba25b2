package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/preetsinghmakkar/SkillSwap/internal/database"
	"github.com/preetsinghmakkar/SkillSwap/internal/models"
)

// ErrStaleSession is returned by UpdateTx when the stored row no longer has
// the status and version the caller read.
var ErrStaleSession = errors.New("session was modified concurrently")

type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
		id,
		teacher_id,
		student_id,
		title,
		skill,
		status,
		scheduled_time,
		duration,
		actual_duration,
		room_id,
		call_started_at,
		call_ended_at,
		teacher_joined_at,
		teacher_left_at,
		teacher_time_spent,
		student_joined_at,
		student_left_at,
		student_time_spent,
		time_credit,
		cancelled_by,
		cancel_reason,
		cancelled_at,
		dispute_reason,
		version,
		created_at,
		updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s             models.Session
		roomID        sql.NullString
		callStarted   sql.NullTime
		callEnded     sql.NullTime
		teacherJoined sql.NullTime
		teacherLeft   sql.NullTime
		studentJoined sql.NullTime
		studentLeft   sql.NullTime
		cancelledBy   uuid.NullUUID
		cancelReason  sql.NullString
		cancelledAt   sql.NullTime
		dispute       sql.NullString
	)

	err := row.Scan(
		&s.ID,
		&s.TeacherID,
		&s.StudentID,
		&s.Title,
		&s.Skill,
		&s.Status,
		&s.ScheduledTime,
		&s.Duration,
		&s.ActualDuration,
		&roomID,
		&callStarted,
		&callEnded,
		&teacherJoined,
		&teacherLeft,
		&s.Teacher.TimeSpent,
		&studentJoined,
		&studentLeft,
		&s.Student.TimeSpent,
		&s.TimeCredit,
		&cancelledBy,
		&cancelReason,
		&cancelledAt,
		&dispute,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ScheduledTime = s.ScheduledTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.RoomID = stringOrNil(roomID)
	s.CallStartedAt = timeOrNil(callStarted)
	s.CallEndedAt = timeOrNil(callEnded)
	s.Teacher.JoinedAt = timeOrNil(teacherJoined)
	s.Teacher.LeftAt = timeOrNil(teacherLeft)
	s.Student.JoinedAt = timeOrNil(studentJoined)
	s.Student.LeftAt = timeOrNil(studentLeft)
	s.DisputeNote = stringOrNil(dispute)
	if cancelledBy.Valid {
		s.Cancellation = &models.Cancellation{
			CancelledBy: cancelledBy.UUID,
			Reason:      cancelReason.String,
			Timestamp:   cancelledAt.Time.UTC(),
		}
	}

	return &s, nil
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	const query = `
	INSERT INTO sessions (
		id,
		teacher_id,
		student_id,
		title,
		skill,
		status,
		scheduled_time,
		duration,
		actual_duration,
		time_credit,
		version,
		created_at,
		updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, 1, $9, $10)
	`

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt
	session.Version = 1

	_, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.TeacherID,
		session.StudentID,
		session.Title,
		session.Skill,
		session.Status,
		session.ScheduledTime.UTC(),
		session.Duration,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID loads a session outside of any transaction.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return r.get(ctx, r.db, id, "")
}

// GetByIDTx loads a session inside tx and, where the engine supports it,
// locks the row until tx ends.
func (r *SessionRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Session, error) {
	return r.get(ctx, tx, id, r.db.ForUpdate())
}

func (r *SessionRepository) get(ctx context.Context, q DBTX, id uuid.UUID, suffix string) (*models.Session, error) {
	query := `SELECT` + sessionColumns + `
	FROM sessions
	WHERE id = $1` + suffix

	session, err := scanSession(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

// UpdateTx writes every mutable column of session, but only if the stored
// row still has expectedStatus and session.Version. On success the version
// is bumped in place.
func (r *SessionRepository) UpdateTx(ctx context.Context, tx *sql.Tx, session *models.Session, expectedStatus models.SessionStatus) error {
	const query = `
	UPDATE sessions
	SET
		status = $1,
		actual_duration = $2,
		room_id = $3,
		call_started_at = $4,
		call_ended_at = $5,
		teacher_joined_at = $6,
		teacher_left_at = $7,
		teacher_time_spent = $8,
		student_joined_at = $9,
		student_left_at = $10,
		student_time_spent = $11,
		time_credit = $12,
		cancelled_by = $13,
		cancel_reason = $14,
		cancelled_at = $15,
		dispute_reason = $16,
		version = version + 1,
		updated_at = $17
	WHERE id = $18 AND status = $19 AND version = $20
	`

	var (
		cancelledBy  uuid.NullUUID
		cancelReason sql.NullString
		cancelledAt  sql.NullTime
	)
	if c := session.Cancellation; c != nil {
		cancelledBy = uuid.NullUUID{UUID: c.CancelledBy, Valid: true}
		cancelReason = sql.NullString{String: c.Reason, Valid: true}
		cancelledAt = sql.NullTime{Time: c.Timestamp.UTC(), Valid: true}
	}

	updatedAt := time.Now().UTC()
	res, err := tx.ExecContext(
		ctx,
		query,
		session.Status,
		session.ActualDuration,
		nullableString(session.RoomID),
		nullableTime(session.CallStartedAt),
		nullableTime(session.CallEndedAt),
		nullableTime(session.Teacher.JoinedAt),
		nullableTime(session.Teacher.LeftAt),
		session.Teacher.TimeSpent,
		nullableTime(session.Student.JoinedAt),
		nullableTime(session.Student.LeftAt),
		session.Student.TimeSpent,
		session.TimeCredit,
		cancelledBy,
		cancelReason,
		cancelledAt,
		nullableString(session.DisputeNote),
		updatedAt,
		session.ID,
		expectedStatus,
		session.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return ErrStaleSession
	}

	session.Version++
	session.UpdatedAt = updatedAt
	return nil
}

// ListByUser returns sessions where userID is teacher or student, newest
// scheduled first. A nil status returns every status.
func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID, status *models.SessionStatus) ([]models.Session, error) {
	query := `SELECT` + sessionColumns + `
	FROM sessions
	WHERE (teacher_id = $1 OR student_id = $1)`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY scheduled_time DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
