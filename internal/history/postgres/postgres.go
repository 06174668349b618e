package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/warden-sh/warden/internal/history"
)

// Sink appends history events to a PostgreSQL database.
type Sink struct {
	db *sql.DB
}

// New connects using a postgres:// DSN.
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty PostgreSQL DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS server_history(
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		event TEXT NOT NULL,
		server_id TEXT NOT NULL,
		name TEXT NOT NULL,
		pid INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		detail TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_history(occurred_at, event, server_id, name, pid, status, detail)
		VALUES($1, $2, $3, $4, $5, $6, $7);`,
		e.OccurredAt.UTC(), string(e.Type), e.Record.ServerID, e.Record.Name,
		e.Record.PID, e.Record.Status, e.Record.Detail)
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
