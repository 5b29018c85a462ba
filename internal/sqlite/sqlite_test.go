package sqlite_test

import (
	"context"
	"github.com/myrjola/profilescan/internal/sqlite"
	"github.com/myrjola/profilescan/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDatabase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := sqlite.NewDatabase(ctx, ":memory:", testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	_, err = db.ReadWrite.ExecContext(ctx, `INSERT INTO assessments (id, assessment_type, bank_version, state, created_at)
VALUES ('a1', 'attachment_style', 'v1', 'submitted', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)

	t.Run("state moves forward", func(t *testing.T) {
		_, err = db.ReadWrite.ExecContext(ctx, `UPDATE assessments SET state = 'scored' WHERE id = 'a1'`)
		require.NoError(t, err)
	})
	t.Run("state cannot move backwards", func(t *testing.T) {
		_, err = db.ReadWrite.ExecContext(ctx, `UPDATE assessments SET state = 'in_progress' WHERE id = 'a1'`)
		require.ErrorContains(t, err, "assessment state cannot move backwards")
	})
	t.Run("unknown assessment type", func(t *testing.T) {
		_, err = db.ReadWrite.ExecContext(ctx, `INSERT INTO assessments (id, assessment_type, bank_version, state,
                         created_at) VALUES ('a2', 'horoscope', 'v1', 'started', '2026-01-01T00:00:00Z')`)
		require.Error(t, err)
	})
	t.Run("read-only pool rejects writes", func(t *testing.T) {
		_, err = db.ReadOnly.ExecContext(ctx, `DELETE FROM assessments`)
		require.Error(t, err)
	})
}

func TestNewDatabase_Reopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	url := filepath.Join(t.TempDir(), "profilescan.sqlite3")
	logger := testhelpers.NewLogger(io.Discard)

	db, err := sqlite.NewDatabase(ctx, url, logger)
	require.NoError(t, err)
	_, err = db.ReadWrite.ExecContext(ctx, `INSERT INTO assessments (id, assessment_type, bank_version, state, created_at)
VALUES ('a1', 'relationship_pattern', 'v1', 'started', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Migrating an up-to-date schema keeps the data.
	db, err = sqlite.NewDatabase(ctx, url, logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	var count int
	require.NoError(t, db.ReadOnly.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments").Scan(&count))
	require.Equal(t, 1, count)
}

func TestDatabase_RunOptimizer(t *testing.T) {
	t.Parallel()
	logger, logs := testhelpers.NewRecordingLogger()
	db, err := sqlite.NewDatabase(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		db.RunOptimizer(ctx, time.Millisecond)
	}()
	require.Eventually(t, func() bool {
		return len(logs.Messages(slog.LevelDebug)) >= 2
	}, time.Second, time.Millisecond, "optimizer runs repeatedly")
	cancel()
	<-done
	require.Empty(t, logs.Messages(slog.LevelError))
}
