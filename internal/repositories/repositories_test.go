package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/database"
	"github.com/preetsinghmakkar/SkillSwap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "sqlite", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func newSession(teacher, student uuid.UUID, scheduled time.Time) *models.Session {
	return &models.Session{
		ID:            uuid.New(),
		TeacherID:     teacher,
		StudentID:     student,
		Title:         "Go concurrency",
		Skill:         "go",
		Status:        models.SessionStatusConfirmed,
		ScheduledTime: scheduled,
		Duration:      60,
	}
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s := newSession(uuid.New(), uuid.New(), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.TeacherID, got.TeacherID)
	assert.Equal(t, s.StudentID, got.StudentID)
	assert.Equal(t, models.SessionStatusConfirmed, got.Status)
	assert.True(t, s.ScheduledTime.Equal(got.ScheduledTime))
	assert.Nil(t, got.RoomID)
	assert.Nil(t, got.Teacher.JoinedAt)
	assert.Equal(t, int64(1), got.Version)
}

func TestSessionRepositoryGetMissing(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestSessionRepositoryUpdateIsCompareAndSet(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	s := newSession(uuid.New(), uuid.New(), time.Now().UTC())
	require.NoError(t, repo.Create(ctx, s))

	stale := *s
	joined := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	room := "room-1"

	err := db.RunInTx(ctx, func(tx *sql.Tx) error {
		current, err := repo.GetByIDTx(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		current.Status = models.SessionStatusInProgress
		current.RoomID = &room
		current.CallStartedAt = &joined
		current.Teacher.JoinedAt = &joined
		return repo.UpdateTx(ctx, tx, current, models.SessionStatusConfirmed)
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusInProgress, got.Status)
	require.NotNil(t, got.RoomID)
	assert.Equal(t, room, *got.RoomID)
	require.NotNil(t, got.Teacher.JoinedAt)
	assert.True(t, joined.Equal(*got.Teacher.JoinedAt))
	assert.Equal(t, int64(2), got.Version)

	err = db.RunInTx(ctx, func(tx *sql.Tx) error {
		stale.Status = models.SessionStatusCancelled
		return repo.UpdateTx(ctx, tx, &stale, models.SessionStatusConfirmed)
	})
	assert.ErrorIs(t, err, ErrStaleSession)
}

func TestSessionRepositoryListByUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	user := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older := newSession(user, uuid.New(), base)
	newer := newSession(uuid.New(), user, base.Add(48*time.Hour))
	pending := newSession(user, uuid.New(), base.Add(24*time.Hour))
	pending.Status = models.SessionStatusPending
	unrelated := newSession(uuid.New(), uuid.New(), base)

	for _, s := range []*models.Session{older, newer, pending, unrelated} {
		require.NoError(t, repo.Create(ctx, s))
	}

	all, err := repo.ListByUser(ctx, user, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, pending.ID, all[1].ID)
	assert.Equal(t, older.ID, all[2].ID)

	status := models.SessionStatusPending
	filtered, err := repo.ListByUser(ctx, user, &status)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, pending.ID, filtered[0].ID)
}

func TestUserRepositoryAdjustBalance(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	user := uuid.New()

	b, err := repo.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.Credit(0), b.TimeBalance)

	require.NoError(t, db.RunInTx(ctx, func(tx *sql.Tx) error {
		if err := repo.AdjustBalanceTx(ctx, tx, user, 11); err != nil {
			return err
		}
		return repo.AdjustBalanceTx(ctx, tx, user, -4)
	}))

	b, err = repo.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.Credit(7), b.TimeBalance)
}

func TestTransactionRepositoryOneCompletedPerSession(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionRepository(db)
	txns := NewTransactionRepository(db)
	ctx := context.Background()

	teacher, student := uuid.New(), uuid.New()
	s := newSession(teacher, student, time.Now().UTC())
	require.NoError(t, sessions.Create(ctx, s))

	entry := func() *models.TimeTransaction {
		return &models.TimeTransaction{
			ID:              uuid.New(),
			FromUser:        student,
			ToUser:          teacher,
			Amount:          11,
			DurationMinutes: 63,
			SessionID:       &s.ID,
			Type:            models.TransactionTypeSession,
			Status:          models.TransactionStatusCompleted,
			CreatedAt:       time.Now().UTC(),
		}
	}

	require.NoError(t, db.RunInTx(ctx, func(tx *sql.Tx) error {
		return txns.InsertTx(ctx, tx, entry())
	}))
	err := db.RunInTx(ctx, func(tx *sql.Tx) error {
		return txns.InsertTx(ctx, tx, entry())
	})
	assert.Error(t, err)

	list, err := txns.ListByUser(ctx, teacher)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.Credit(11), list[0].Amount)
	require.NotNil(t, list[0].SessionID)
	assert.Equal(t, s.ID, *list[0].SessionID)

	bySession, err := txns.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, bySession, 1)
}
