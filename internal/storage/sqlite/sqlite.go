package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"pitchbot/migrations"
)

// timeLayout is how timestamps are stored. RFC3339 in UTC with a
// fixed-width nanosecond fraction keeps lexicographic and chronological
// order aligned for SQL comparisons even within the same second.
// RFC3339Nano would trim trailing zeros and break that for whole-second
// values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements storage.Storage backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens (or creates) the SQLite database at the supplied path.
func New(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`PRAGMA foreign_keys=ON`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	// Single in-process writer; serializing connections sidesteps
	// SQLITE_BUSY while the conditional updates keep correctness.
	db.SetMaxOpenConns(1)

	return &Store{db: db, logger: logger}, nil
}

// Initialize applies the embedded goose migrations.
func (s *Store) Initialize(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	s.logger.Info("Database schema up to date")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	// Rows written before the fixed-width fraction was adopted.
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// Rows seeded by migrations use SQLite's CURRENT_TIMESTAMP format.
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}
