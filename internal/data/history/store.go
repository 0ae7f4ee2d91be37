package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5

	// Fixed width so ts_utc sorts lexically.
	tsLayout = "2006-01-02T15:04:05.000000000Z"
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// Watch mode writes from concurrent theme builds.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts rec. A missing run ID gets a fresh one; a zero timestamp
// becomes now.
func (s *Store) Save(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(rec.ThemeID) == "" {
		return rec, fmt.Errorf("history record needs a theme id")
	}
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	query := `
INSERT INTO theme_runs (
  run_id, theme_id, ts_utc, locale, module_count, warning_count, bundle_count, invalid_shim_count,
  core_bytes_before, core_bytes_after, config_bytes_before, config_bytes_after
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, theme_id) DO UPDATE SET
  ts_utc=excluded.ts_utc,
  locale=excluded.locale,
  module_count=excluded.module_count,
  warning_count=excluded.warning_count,
  bundle_count=excluded.bundle_count,
  invalid_shim_count=excluded.invalid_shim_count,
  core_bytes_before=excluded.core_bytes_before,
  core_bytes_after=excluded.core_bytes_after,
  config_bytes_before=excluded.config_bytes_before,
  config_bytes_after=excluded.config_bytes_after
`
	err := s.withRetry("save theme run", func() error {
		_, err := s.db.Exec(
			query,
			rec.RunID,
			rec.ThemeID,
			rec.Timestamp.Format(tsLayout),
			rec.Locale,
			rec.ModuleCount,
			rec.WarningCount,
			rec.BundleCount,
			rec.InvalidShimCount,
			rec.CoreBytesBefore,
			rec.CoreBytesAfter,
			rec.ConfigBytesBefore,
			rec.ConfigBytesAfter,
		)
		return err
	})
	return rec, err
}

// Load returns the newest limit records for a theme, oldest first. A limit
// of zero or less returns every record.
func (s *Store) Load(themeID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT
  run_id, theme_id, ts_utc, locale, module_count, warning_count, bundle_count, invalid_shim_count,
  core_bytes_before, core_bytes_after, config_bytes_before, config_bytes_after
FROM theme_runs
WHERE theme_id = ?
ORDER BY ts_utc DESC, run_id DESC
`
	args := []any{themeID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows *sql.Rows
	err := s.withRetry("load theme runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			tsRaw string
			rec   Record
		)
		if err := rows.Scan(
			&rec.RunID,
			&rec.ThemeID,
			&tsRaw,
			&rec.Locale,
			&rec.ModuleCount,
			&rec.WarningCount,
			&rec.BundleCount,
			&rec.InvalidShimCount,
			&rec.CoreBytesBefore,
			&rec.CoreBytesAfter,
			&rec.ConfigBytesBefore,
			&rec.ConfigBytesAfter,
		); err != nil {
			return nil, fmt.Errorf("scan theme run row: %w", err)
		}
		ts, err := time.Parse(tsLayout, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", tsRaw, err)
		}
		rec.Timestamp = ts.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate theme run rows: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// IsCorruptError reports errors from a file that is not a usable database.
func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
