package database

import (
	"context"
	"fmt"
	"strings"
)

// schema is written once with placeholders for the few type differences
// between Postgres and SQLite.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	time_balance BIGINT NOT NULL DEFAULT 0,
	updated_at   {{TIMESTAMP}} NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	teacher_id         TEXT NOT NULL,
	student_id         TEXT NOT NULL,
	title              TEXT NOT NULL DEFAULT '',
	skill              TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	scheduled_time     {{TIMESTAMP}} NOT NULL,
	duration           INTEGER NOT NULL,
	actual_duration    INTEGER NOT NULL DEFAULT 0,
	room_id            TEXT,
	call_started_at    {{TIMESTAMP}},
	call_ended_at      {{TIMESTAMP}},
	teacher_joined_at  {{TIMESTAMP}},
	teacher_left_at    {{TIMESTAMP}},
	teacher_time_spent INTEGER NOT NULL DEFAULT 0,
	student_joined_at  {{TIMESTAMP}},
	student_left_at    {{TIMESTAMP}},
	student_time_spent INTEGER NOT NULL DEFAULT 0,
	time_credit        BIGINT NOT NULL DEFAULT 0,
	cancelled_by       TEXT,
	cancel_reason      TEXT,
	cancelled_at       {{TIMESTAMP}},
	dispute_reason     TEXT,
	version            BIGINT NOT NULL DEFAULT 1,
	created_at         {{TIMESTAMP}} NOT NULL,
	updated_at         {{TIMESTAMP}} NOT NULL,
	CHECK (actual_duration >= 0),
	CHECK (teacher_id <> student_id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_teacher ON sessions (teacher_id, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_sessions_student ON sessions (student_id, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_sessions_room ON sessions (room_id);

CREATE TABLE IF NOT EXISTS time_transactions (
	id               TEXT PRIMARY KEY,
	from_user        TEXT NOT NULL,
	to_user          TEXT NOT NULL,
	amount           BIGINT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	session_id       TEXT REFERENCES sessions (id),
	type             TEXT NOT NULL,
	status           TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	created_at       {{TIMESTAMP}} NOT NULL,
	CHECK (amount > 0)
);

CREATE INDEX IF NOT EXISTS idx_time_transactions_from ON time_transactions (from_user, created_at);
CREATE INDEX IF NOT EXISTS idx_time_transactions_to ON time_transactions (to_user, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_time_transactions_session_completed
	ON time_transactions (session_id) WHERE status = 'completed';
`

// Migrate creates the tables this service owns if they do not exist yet.
func Migrate(ctx context.Context, db *DB) error {
	timestamp := "DATETIME"
	if db.Dialect == DialectPostgres {
		timestamp = "TIMESTAMPTZ"
	}
	ddl := strings.ReplaceAll(schema, "{{TIMESTAMP}}", timestamp)

	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
