// Package audit writes an append-only trail of every mutating operation.
// Writes are fire-and-forget: a sink failure is logged and swallowed, it
// never rolls back the operation it describes.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type Entry struct {
	ActorID  uuid.UUID
	Action   string
	Table    string
	RecordID uuid.UUID
	Detail   string
}

type Sink interface {
	Record(ctx context.Context, e Entry)
}

// DB is the subset of pgxpool.Pool the sink needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgSink struct {
	db  DB
	log zerolog.Logger
}

func NewPgSink(db DB, log zerolog.Logger) *PgSink {
	return &PgSink{db: db, log: log}
}

func (s *PgSink) Record(ctx context.Context, e Entry) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_entries (actor_id, action, table_name, record_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ActorID, e.Action, e.Table, e.RecordID, e.Detail, time.Now().UTC())
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("action", e.Action).
			Str("table", e.Table).
			Str("record_id", e.RecordID.String()).
			Msg("audit entry dropped")
	}
}

// NopSink discards every entry. Used in tests and tools.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) {}
