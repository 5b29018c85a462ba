package sqlite

import (
	"context"
	"github.com/myrjola/profilescan/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

const (
	surveysV1 = `CREATE TABLE surveys (id TEXT PRIMARY KEY, state TEXT NOT NULL);`
	surveysV2 = `CREATE TABLE surveys (id TEXT PRIMARY KEY, state TEXT NOT NULL, note TEXT NOT NULL DEFAULT 'none');`
	answers   = `CREATE TABLE answers (survey_id TEXT NOT NULL REFERENCES surveys (id), value INTEGER NOT NULL);`
)

func countRows(ctx context.Context, t *testing.T, db *Database, query string) int {
	t.Helper()
	var n int
	require.NoError(t, db.ReadWrite.QueryRowContext(ctx, query).Scan(&n))
	return n
}

func TestDatabase_migrateTo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		initial string
		seed    []string
		target  string
		wantErr bool
		check   func(ctx context.Context, t *testing.T, db *Database)
	}{
		{
			name:    "new table",
			initial: "",
			seed:    nil,
			target:  surveysV1,
			wantErr: false,
			check: func(ctx context.Context, t *testing.T, db *Database) {
				_, err := db.ReadWrite.ExecContext(ctx, `INSERT INTO surveys (id, state) VALUES ('s1', 'started')`)
				require.NoError(t, err)
			},
		},
		{
			name:    "added column keeps rows and gets its default",
			initial: surveysV1,
			seed:    []string{`INSERT INTO surveys (id, state) VALUES ('s1', 'finalized')`},
			target:  surveysV2,
			wantErr: false,
			check: func(ctx context.Context, t *testing.T, db *Database) {
				var state, note string
				require.NoError(t, db.ReadWrite.QueryRowContext(ctx,
					`SELECT state, note FROM surveys WHERE id = 's1'`).Scan(&state, &note))
				require.Equal(t, "finalized", state)
				require.Equal(t, "none", note)
			},
		},
		{
			name:    "removed column drops its data",
			initial: surveysV2,
			seed:    []string{`INSERT INTO surveys (id, state, note) VALUES ('s1', 'started', 'x')`},
			target:  surveysV1,
			wantErr: false,
			check: func(ctx context.Context, t *testing.T, db *Database) {
				require.Equal(t, 1, countRows(ctx, t, db, `SELECT COUNT(*) FROM surveys`))
				_, err := db.ReadWrite.ExecContext(ctx, `SELECT note FROM surveys`)
				require.Error(t, err)
			},
		},
		{
			name:    "dropped table",
			initial: surveysV1 + answers,
			seed:    nil,
			target:  surveysV1,
			wantErr: false,
			check: func(ctx context.Context, t *testing.T, db *Database) {
				require.Equal(t, 0, countRows(ctx, t, db,
					`SELECT COUNT(*) FROM sqlite_schema WHERE type = 'table' AND name = 'answers'`))
			},
		},
		{
			name:    "foreign key violation aborts the migration",
			initial: surveysV1 + `CREATE TABLE answers (survey_id TEXT NOT NULL, value INTEGER NOT NULL);`,
			seed:    []string{`INSERT INTO answers (survey_id, value) VALUES ('missing', 3)`},
			target:  surveysV1 + answers,
			wantErr: true,
			check: func(ctx context.Context, t *testing.T, db *Database) {
				require.Equal(t, 1, countRows(ctx, t, db, `SELECT COUNT(*) FROM answers`), "rolled back")
			},
		},
		{
			name:    "changed index is recreated",
			initial: surveysV1 + `CREATE INDEX surveys_state_idx ON surveys (state);`,
			seed:    nil,
			target:  surveysV1 + `CREATE INDEX surveys_state_idx ON surveys (state, id);`,
			wantErr: false,
			check: func(ctx context.Context, t *testing.T, db *Database) {
				var sql string
				require.NoError(t, db.ReadWrite.QueryRowContext(ctx,
					`SELECT sql FROM sqlite_schema WHERE name = 'surveys_state_idx'`).Scan(&sql))
				require.Contains(t, sql, "(state, id)")
			},
		},
		{
			name: "removed trigger stops firing",
			initial: surveysV1 + `CREATE TRIGGER surveys_frozen BEFORE UPDATE ON surveys
BEGIN SELECT RAISE(ABORT, 'frozen'); END;`,
			seed:    []string{`INSERT INTO surveys (id, state) VALUES ('s1', 'started')`},
			target:  surveysV1,
			wantErr: false,
			check: func(ctx context.Context, t *testing.T, db *Database) {
				_, err := db.ReadWrite.ExecContext(ctx, `UPDATE surveys SET state = 'finalized'`)
				require.NoError(t, err)
			},
		},
		{
			name:    "application schema is stable",
			initial: schemaDefinition,
			seed:    nil,
			target:  schemaDefinition,
			wantErr: false,
			check: func(ctx context.Context, t *testing.T, db *Database) {
				require.Equal(t, 1, countRows(ctx, t, db,
					`SELECT COUNT(*) FROM sqlite_schema WHERE name = 'assessments_state_forward_only'`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			db, err := connect(":memory:", testhelpers.NewLogger(io.Discard))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			require.NoError(t, db.migrateTo(ctx, tt.initial))
			for _, query := range tt.seed {
				_, err = db.ReadWrite.ExecContext(ctx, query)
				require.NoError(t, err)
			}
			err = db.migrateTo(ctx, tt.target)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			tt.check(ctx, t, db)
		})
	}
}
