package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/warden-sh/warden/internal/history"
)

// startPostgresContainer starts a PostgreSQL container and returns a pgx
// stdlib DSN. It skips the test when Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("failed to get container host: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			err = db.Ping()
			_ = db.Close()
			if err == nil {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Skip("PostgreSQL container never became ready")
}

func TestSinkAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	dsn, terminate := startPostgresContainer(t)
	defer terminate()
	waitForPostgres(t, dsn)

	sink, err := New(dsn)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventCreated, OccurredAt: time.Now(),
			Record: history.Record{ServerID: "srv-1", Name: "survival", Status: "Offline"}},
		{Type: history.EventStarted, OccurredAt: time.Now(),
			Record: history.Record{ServerID: "srv-1", Name: "survival", PID: 99, Status: "Starting"}},
		{Type: history.EventStatusChanged, OccurredAt: time.Now(),
			Record: history.Record{ServerID: "srv-1", Name: "survival", PID: 99, Status: "Online",
				Detail: "Starting -> Online"}},
	}
	for _, e := range events {
		require.NoError(t, sink.Send(ctx, e))
	}

	var count int
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM server_history WHERE server_id = 'srv-1'`).Scan(&count))
	assert.Equal(t, len(events), count)

	var detail string
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT detail FROM server_history WHERE event = 'status-changed'`).Scan(&detail))
	assert.Equal(t, "Starting -> Online", detail)
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
