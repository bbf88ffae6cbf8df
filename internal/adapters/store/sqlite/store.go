// Package sqlite provides SQLite-backed implementations of the state store,
// session and conflict repositories, and the telemetry logs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/symphainy/trafficcop/internal/adapters/store/sqlite/migrations"
	"github.com/symphainy/trafficcop/internal/platform/codec"
	"github.com/symphainy/trafficcop/internal/platform/keylock"
	"github.com/symphainy/trafficcop/internal/platform/sqlitemigrate"
	"github.com/symphainy/trafficcop/internal/ports"
	_ "modernc.org/sqlite"
)

const (
	dbDirMode = 0o700
	dsnParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
)

var errNotConfigured = errors.New("storage is not configured")

// Store owns the database handle. The port implementations are views over it.
type Store struct {
	sqlDB *sql.DB
	clock ports.Clock
	locks *keylock.Locker
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string, clock ports.Clock) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), dbDirMode); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", cleanPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, clock: clock, locks: keylock.New(keylock.DefaultShards)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) States() *StateStore {
	return &StateStore{store: s}
}

func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{store: s}
}

func (s *Store) Conflicts() *ConflictRepository {
	return &ConflictRepository{store: s}
}

func (s *Store) Telemetry() *TelemetryLog {
	return &TelemetryLog{store: s}
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}
	return nil
}

// Times are stored as Unix nanoseconds so ordering by updated_at matches the
// times handed back by writes.
func toUnixNano(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixNano()
}

func fromUnixNano(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(0, value).UTC()
}

// encodeMap stores nil and empty maps as SQL NULL.
func encodeMap(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return codec.Marshal(m)
}
