package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(context.Background(), DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestOpen_SchemaIsIdempotent(t *testing.T) {
	conn := openMem(t)
	require.NoError(t, ensureSchema(context.Background(), conn, DriverSQLite))

	var n int
	err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN
		('assessment_criteria','learning_outcomes','report_outcomes','lo_ac_mapping','ro_lo_mapping',
		 'ac_scores','lo_scores','ro_scores','students','student_enrollments','event_log')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	conn := openMem(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, conn, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO students(id, name, roll_no) VALUES ($1, $2, $3)`, 1, "a", "1"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM students`).Scan(&n))
	assert.Equal(t, 0, n)

	require.NoError(t, WithTx(ctx, conn, nil, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO students(id, name, roll_no) VALUES ($1, $2, $3)`, 1, "a", "1")
		return err
	}))
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM students`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestParseDriver(t *testing.T) {
	d, err := ParseDriver("pgx")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, d)

	d, err = ParseDriver("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, d)

	_, err = ParseDriver("mysql")
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1, $2, $3", Placeholders(1, 3))
	assert.Equal(t, "$4", Placeholders(4, 1))
	assert.Equal(t, "", Placeholders(1, 0))
}
