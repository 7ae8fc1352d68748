package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver maps common aliases to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", s)
	}
}

// Open opens a DB, tunes the pool and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:outcomes.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/outcomes?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	tunePool(driver, db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	if driver == DriverSQLite {
		if err := applySQLitePragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db: schema: %w", err)
	}
	return db, nil
}

func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		// single writer; one connection also keeps a :memory: database alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
}

func applySQLitePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("db: sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS students (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  roll_no TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS student_enrollments (
  student_id INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
  year TEXT NOT NULL,
  class TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (student_id, year)
);

CREATE TABLE IF NOT EXISTS assessment_criteria (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  subject TEXT NOT NULL,
  year TEXT NOT NULL,
  quarter TEXT NOT NULL,
  class TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  max_marks REAL NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  subject TEXT NOT NULL,
  year TEXT NOT NULL,
  quarter TEXT NOT NULL,
  class TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS report_outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  subject TEXT NOT NULL,
  year TEXT NOT NULL,
  quarter TEXT NOT NULL,
  class TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lo_ac_mapping (
  lo_id INTEGER NOT NULL REFERENCES learning_outcomes(id) ON DELETE CASCADE,
  ac_id INTEGER NOT NULL REFERENCES assessment_criteria(id) ON DELETE CASCADE,
  priority TEXT,
  weight REAL,
  PRIMARY KEY (lo_id, ac_id)
);

CREATE TABLE IF NOT EXISTS ro_lo_mapping (
  ro_id INTEGER NOT NULL REFERENCES report_outcomes(id) ON DELETE CASCADE,
  lo_id INTEGER NOT NULL REFERENCES learning_outcomes(id) ON DELETE CASCADE,
  priority TEXT,
  weight REAL,
  PRIMARY KEY (ro_id, lo_id)
);

CREATE TABLE IF NOT EXISTS ac_scores (
  student_id INTEGER NOT NULL,
  ac_id INTEGER NOT NULL REFERENCES assessment_criteria(id) ON DELETE CASCADE,
  obtained_marks REAL NOT NULL,
  value REAL NOT NULL,
  PRIMARY KEY (student_id, ac_id)
);

CREATE TABLE IF NOT EXISTS lo_scores (
  student_id INTEGER NOT NULL,
  lo_id INTEGER NOT NULL REFERENCES learning_outcomes(id) ON DELETE CASCADE,
  value REAL NOT NULL,
  PRIMARY KEY (student_id, lo_id)
);

CREATE TABLE IF NOT EXISTS ro_scores (
  student_id INTEGER NOT NULL,
  ro_id INTEGER NOT NULL REFERENCES report_outcomes(id) ON DELETE CASCADE,
  value REAL NOT NULL,
  PRIMARY KEY (student_id, ro_id)
);

CREATE INDEX IF NOT EXISTS idx_lo_ac_ac ON lo_ac_mapping(ac_id);
CREATE INDEX IF NOT EXISTS idx_ro_lo_lo ON ro_lo_mapping(lo_id);
CREATE INDEX IF NOT EXISTS idx_ac_scores_ac ON ac_scores(ac_id);
CREATE INDEX IF NOT EXISTS idx_lo_scores_lo ON lo_scores(lo_id);
CREATE INDEX IF NOT EXISTS idx_ro_scores_ro ON ro_scores(ro_id);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  ref TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS students (
  id BIGINT PRIMARY KEY,
  name TEXT NOT NULL,
  roll_no TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS student_enrollments (
  student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
  year TEXT NOT NULL,
  class TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (student_id, year)
);

CREATE TABLE IF NOT EXISTS assessment_criteria (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  subject TEXT NOT NULL,
  year TEXT NOT NULL,
  quarter TEXT NOT NULL,
  class TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  max_marks DOUBLE PRECISION NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_outcomes (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  subject TEXT NOT NULL,
  year TEXT NOT NULL,
  quarter TEXT NOT NULL,
  class TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS report_outcomes (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  subject TEXT NOT NULL,
  year TEXT NOT NULL,
  quarter TEXT NOT NULL,
  class TEXT NOT NULL,
  section TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS lo_ac_mapping (
  lo_id BIGINT NOT NULL REFERENCES learning_outcomes(id) ON DELETE CASCADE,
  ac_id BIGINT NOT NULL REFERENCES assessment_criteria(id) ON DELETE CASCADE,
  priority TEXT,
  weight DOUBLE PRECISION,
  PRIMARY KEY (lo_id, ac_id)
);

CREATE TABLE IF NOT EXISTS ro_lo_mapping (
  ro_id BIGINT NOT NULL REFERENCES report_outcomes(id) ON DELETE CASCADE,
  lo_id BIGINT NOT NULL REFERENCES learning_outcomes(id) ON DELETE CASCADE,
  priority TEXT,
  weight DOUBLE PRECISION,
  PRIMARY KEY (ro_id, lo_id)
);

CREATE TABLE IF NOT EXISTS ac_scores (
  student_id BIGINT NOT NULL,
  ac_id BIGINT NOT NULL REFERENCES assessment_criteria(id) ON DELETE CASCADE,
  obtained_marks DOUBLE PRECISION NOT NULL,
  value DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (student_id, ac_id)
);

CREATE TABLE IF NOT EXISTS lo_scores (
  student_id BIGINT NOT NULL,
  lo_id BIGINT NOT NULL REFERENCES learning_outcomes(id) ON DELETE CASCADE,
  value DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (student_id, lo_id)
);

CREATE TABLE IF NOT EXISTS ro_scores (
  student_id BIGINT NOT NULL,
  ro_id BIGINT NOT NULL REFERENCES report_outcomes(id) ON DELETE CASCADE,
  value DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (student_id, ro_id)
);

CREATE INDEX IF NOT EXISTS idx_lo_ac_ac ON lo_ac_mapping(ac_id);
CREATE INDEX IF NOT EXISTS idx_ro_lo_lo ON ro_lo_mapping(lo_id);
CREATE INDEX IF NOT EXISTS idx_ac_scores_ac ON ac_scores(ac_id);
CREATE INDEX IF NOT EXISTS idx_lo_scores_lo ON lo_scores(lo_id);
CREATE INDEX IF NOT EXISTS idx_ro_scores_ro ON ro_scores(ro_id);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  kind TEXT NOT NULL,
  ref TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
