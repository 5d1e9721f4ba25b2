package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/preetsinghmakkar/SkillSwap/internal/database"
	"github.com/preetsinghmakkar/SkillSwap/internal/metrics"
	"github.com/preetsinghmakkar/SkillSwap/internal/models"
	"github.com/preetsinghmakkar/SkillSwap/internal/notifications"
	"github.com/preetsinghmakkar/SkillSwap/internal/repositories"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewSession describes a session request made by a student.
type NewSession struct {
	TeacherID     uuid.UUID
	StudentID     uuid.UUID
	Title         string
	Skill         string
	ScheduledTime time.Time
	Duration      int
}

// SessionService is the authority over the session lifecycle. Every mutation
// holds the per-session lock and runs in one database transaction.
type SessionService struct {
	db       *database.DB
	sessions *repositories.SessionRepository
	ledger   *LedgerService
	notifier notifications.Notifier
	locks    *keyedMutex
	now      func() time.Time
	log      zerolog.Logger
}

func NewSessionService(
	db *database.DB,
	sessions *repositories.SessionRepository,
	ledger *LedgerService,
	notifier notifications.Notifier,
) *SessionService {
	return &SessionService{
		db:       db,
		sessions: sessions,
		ledger:   ledger,
		notifier: notifier,
		locks:    newKeyedMutex(),
		now:      time.Now,
		log:      log.With().Str("component", "sessions").Logger(),
	}
}

// Create stores a pending session and tells the teacher about the request.
func (s *SessionService) Create(ctx context.Context, in NewSession) (*models.Session, error) {
	if in.TeacherID == in.StudentID {
		return nil, fmt.Errorf("%w: teacher and student must differ", apperrors.ErrInvalidInput)
	}
	if in.Duration < 1 {
		return nil, fmt.Errorf("%w: duration must be at least one minute", apperrors.ErrInvalidInput)
	}

	session := &models.Session{
		ID:            uuid.New(),
		TeacherID:     in.TeacherID,
		StudentID:     in.StudentID,
		Title:         in.Title,
		Skill:         in.Skill,
		Status:        models.SessionStatusPending,
		ScheduledTime: in.ScheduledTime.UTC(),
		Duration:      in.Duration,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusPending)).Inc()
	s.notifier.Notify(ctx, session.TeacherID, notifications.Notification{
		Type:      notifications.TypeSessionRequested,
		Message:   fmt.Sprintf("You have a new session request for %q", session.Skill),
		SessionID: session.ID,
	})
	return session, nil
}

// Get returns the session if requesterID takes part in it.
func (s *SessionService) Get(ctx context.Context, sessionID, requesterID uuid.UUID) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := session.RoleOf(requesterID); !ok {
		return nil, apperrors.ErrForbidden
	}
	return session, nil
}

// ListForUser returns the user's sessions, newest scheduled first. An empty
// status returns all of them.
func (s *SessionService) ListForUser(ctx context.Context, userID uuid.UUID, status string) ([]models.Session, error) {
	var filter *models.SessionStatus
	if status != "" {
		st := models.SessionStatus(status)
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, status)
		}
		filter = &st
	}
	return s.sessions.ListByUser(ctx, userID, filter)
}

// Confirm accepts a pending request. Only the teacher may confirm.
func (s *SessionService) Confirm(ctx context.Context, sessionID, requesterID uuid.UUID) (*models.Session, error) {
	session, err := s.mutate(ctx, sessionID, requesterID, func(session *models.Session, role models.Role, _ time.Time) (bool, error) {
		if role != models.RoleTeacher {
			return false, apperrors.ErrForbidden
		}
		return true, s.moveTo(session, models.SessionStatusConfirmed)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, session.StudentID, notifications.Notification{
		Type:      notifications.TypeSessionConfirmed,
		Message:   fmt.Sprintf("Your session %q was confirmed", session.Title),
		SessionID: session.ID,
	})
	return session, nil
}

// Cancel withdraws a session that has not started yet.
func (s *SessionService) Cancel(ctx context.Context, sessionID, requesterID uuid.UUID, reason string) (*models.Session, error) {
	var other uuid.UUID
	session, err := s.mutate(ctx, sessionID, requesterID, func(session *models.Session, role models.Role, now time.Time) (bool, error) {
		if err := s.moveTo(session, models.SessionStatusCancelled); err != nil {
			return false, err
		}
		session.Cancellation = &models.Cancellation{
			CancelledBy: requesterID,
			Reason:      reason,
			Timestamp:   now,
		}
		other = session.TeacherID
		if role == models.RoleTeacher {
			other = session.StudentID
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, other, notifications.Notification{
		Type:      notifications.TypeSessionCancelled,
		Message:   fmt.Sprintf("Session %q was cancelled", session.Title),
		SessionID: session.ID,
	})
	return session, nil
}

// Dispute flags a live or finished session for manual review.
func (s *SessionService) Dispute(ctx context.Context, sessionID, requesterID uuid.UUID, reason string) (*models.Session, error) {
	return s.mutate(ctx, sessionID, requesterID, func(session *models.Session, _ models.Role, _ time.Time) (bool, error) {
		if err := s.moveTo(session, models.SessionStatusDisputed); err != nil {
			return false, err
		}
		session.DisputeNote = &reason
		return true, nil
	})
}

// Start puts the session in progress and records the requester as joined.
// The first start stores the room id, minting one when roomID is empty.
// Later starts reuse the stored room.
func (s *SessionService) Start(ctx context.Context, sessionID, requesterID uuid.UUID, roomID string) (*models.Session, error) {
	var firstStart bool
	var role models.Role
	session, err := s.mutate(ctx, sessionID, requesterID, func(session *models.Session, r models.Role, now time.Time) (bool, error) {
		role = r
		p := session.Participant(r)
		if session.Status == models.SessionStatusInProgress && p.Present() {
			// Already in the call; keep the original join time.
			return false, nil
		}

		firstStart = session.Status == models.SessionStatusConfirmed
		if err := s.moveTo(session, models.SessionStatusInProgress); err != nil {
			return false, err
		}

		if session.RoomID == nil {
			if roomID == "" {
				roomID = uuid.NewString()
			}
			session.RoomID = &roomID
		}
		if session.CallStartedAt == nil {
			session.CallStartedAt = &now
		}
		p.JoinedAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("room_id", *session.RoomID).
		Str("role", string(role)).
		Bool("first_start", firstStart).
		Msg("participant joined session")

	if firstStart {
		other := session.TeacherID
		if role == models.RoleTeacher {
			other = session.StudentID
		}
		s.notifier.Notify(ctx, other, notifications.Notification{
			Type:      notifications.TypeSessionStarted,
			Message:   fmt.Sprintf("Session %q has started", session.Title),
			SessionID: session.ID,
		})
	}
	return session, nil
}

// End records the requester leaving and adds the elapsed minutes of their
// current stay. Once both roles have left, the session completes and the
// credit is settled in the same transaction. Calling End on a completed
// session returns it unchanged.
func (s *SessionService) End(ctx context.Context, sessionID, requesterID uuid.UUID) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var (
		result     *models.Session
		txn        *models.TimeTransaction
		finalizing bool
	)

	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		session, err := s.sessions.GetByIDTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		role, ok := session.RoleOf(requesterID)
		if !ok {
			return apperrors.ErrForbidden
		}

		switch session.Status {
		case models.SessionStatusCompleted, models.SessionStatusDisputed:
			result = session
			return nil
		case models.SessionStatusInProgress:
		default:
			return fmt.Errorf("%w: cannot end a %s session", apperrors.ErrInvalidTransition, session.Status)
		}

		now := s.now().UTC()
		p := session.Participant(role)
		changed := false
		switch {
		case p.Present():
			minutes := models.ElapsedMinutes(*p.JoinedAt, now)
			p.TimeSpent += minutes
			session.ActualDuration += minutes
			p.LeftAt = &now
			changed = true
		case p.JoinedAt == nil && p.LeftAt == nil:
			// Never joined; the departure still counts for finalization.
			p.LeftAt = &now
			changed = true
		}

		if session.Participant(role.Other()).HasLeft() {
			finalizing = true
			session.Status = models.SessionStatusCompleted
			session.CallEndedAt = &now
			session.TimeCredit = models.CreditForMinutes(session.ActualDuration)
			changed = true
		}

		if !changed {
			result = session
			return nil
		}

		if err := s.sessions.UpdateTx(ctx, tx, session, models.SessionStatusInProgress); err != nil {
			return err
		}

		if finalizing {
			txn, err = s.ledger.Settle(ctx, tx, session.TeacherID, session.StudentID, session.ID, session.ActualDuration)
			if err != nil {
				return err
			}
		}

		result = session
		return nil
	})
	if err != nil {
		if finalizing && !errors.Is(err, apperrors.ErrLedgerFailure) {
			err = fmt.Errorf("%w: %v", apperrors.ErrLedgerFailure, err)
		}
		if errors.Is(err, repositories.ErrStaleSession) {
			err = fmt.Errorf("%w: %v", apperrors.ErrInvalidTransition, err)
		}
		return nil, err
	}

	if finalizing {
		metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusCompleted)).Inc()
		s.log.Info().
			Str("session_id", result.ID.String()).
			Int("actual_duration", result.ActualDuration).
			Str("time_credit", result.TimeCredit.String()).
			Msg("session completed")

		for _, userID := range []uuid.UUID{result.TeacherID, result.StudentID} {
			s.notifier.Notify(ctx, userID, notifications.Notification{
				Type:      notifications.TypeSessionCompleted,
				Message:   fmt.Sprintf("Session %q completed after %d minutes", result.Title, result.ActualDuration),
				SessionID: result.ID,
			})
		}
		if txn != nil {
			s.notifier.Notify(ctx, result.TeacherID, notifications.Notification{
				Type:      notifications.TypeCreditReceived,
				Message:   fmt.Sprintf("You earned %s hours of time credit", txn.Amount),
				SessionID: result.ID,
			})
		}
	}
	return result, nil
}

// mutate loads the session under lock, checks membership and hands it to fn.
// fn reports whether it changed the session; unchanged sessions are returned
// without a write.
func (s *SessionService) mutate(
	ctx context.Context,
	sessionID uuid.UUID,
	requesterID uuid.UUID,
	fn func(session *models.Session, role models.Role, now time.Time) (bool, error),
) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var result *models.Session
	var from, to models.SessionStatus
	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		session, err := s.sessions.GetByIDTx(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		role, ok := session.RoleOf(requesterID)
		if !ok {
			return apperrors.ErrForbidden
		}

		from = session.Status
		changed, err := fn(session, role, s.now().UTC())
		if err != nil {
			return err
		}
		to = session.Status
		if changed {
			if err := s.sessions.UpdateTx(ctx, tx, session, from); err != nil {
				return err
			}
		}
		result = session
		return nil
	})
	if errors.Is(err, repositories.ErrStaleSession) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidTransition, err)
	}
	if err != nil {
		return nil, err
	}

	if from != to {
		metrics.SessionTransitions.WithLabelValues(string(to)).Inc()
	}
	return result, nil
}

func (s *SessionService) moveTo(session *models.Session, to models.SessionStatus) error {
	if !session.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, session.Status, to)
	}
	session.Status = to
	return nil
}
