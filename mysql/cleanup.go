package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dundich/outbox"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "outbox:cleanup:"
)

// CleanupOptions defines how to delete terminal rows from non-partitioned
// tables. Partitioned deployments drop whole partitions via the parts
// maintainer instead.
type CleanupOptions struct {
	// Before removes rows older than this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per call (0 uses the default).
	Limit int
	// IncludeFailed removes permanently failed rows in addition to
	// delivered ones.
	IncludeFailed bool
	// IncludeErrorLog removes error-log days entirely before the cutoff.
	IncludeErrorLog bool
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Delivered int64
	Failed    int64
	ErrorLog  int64
}

// CleanupConfig controls periodic cleanup of non-partitioned tables.
type CleanupConfig struct {
	// Table is the outbox messages table name.
	Table string
	// ErrorsTable is the error log table name.
	ErrorsTable string
	// Retention removes rows older than now-retention (required).
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// IncludeFailed removes permanently failed rows as well.
	IncludeFailed bool
	// IncludeErrorLog removes old error-log days as well.
	IncludeErrorLog bool
	// LockName is the advisory lock name. Defaults to outbox:cleanup:<table>.
	LockName string
	// Clock overrides the time source (useful for tests).
	Clock outbox.Clock
	// Logger receives warnings about cleanup failures.
	Logger outbox.Logger
}

// CleanupMaintainer runs periodic cleanup for non-partitioned tables.
type CleanupMaintainer struct {
	store *Store
	cfg   CleanupConfig
}

// Cleanup removes terminal rows older than opts.Before.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultCleanupLimit
	}
	if limit < 0 {
		return CleanupResult{}, ErrCleanupLimitInvalid
	}

	remaining := limit
	delivered, err := s.cleanupDelivered(ctx, opts.Before, remaining)
	if err != nil {
		return CleanupResult{}, err
	}
	remaining -= int(delivered)

	result := CleanupResult{Delivered: delivered}
	if opts.IncludeFailed && remaining > 0 {
		result.Failed, err = s.cleanupFailed(ctx, opts.Before, remaining)
		if err != nil {
			return CleanupResult{}, err
		}
	}
	if opts.IncludeErrorLog {
		result.ErrorLog, err = s.cleanupErrorLog(ctx, opts.Before)
		if err != nil {
			return CleanupResult{}, err
		}
	}

	return result, nil
}

// cleanupDelivered removes success-family and moved rows.
func (s *Store) cleanupDelivered(ctx context.Context, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}

	// #nosec G201 -- table names are internal and sanitized.
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE status_code BETWEEN ? AND ? AND delivered_at IS NOT NULL AND delivered_at <= ? ORDER BY id LIMIT ?",
		s.table,
	)
	res, err := s.db.ExecContext(ctx, query, outbox.StatusOk, outbox.StatusMovedPermanently, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: cleanup delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: cleanup rows failed: %w", err)
	}

	return affected, nil
}

// cleanupFailed removes error-family rows.
func (s *Store) cleanupFailed(ctx context.Context, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}

	// #nosec G201 -- table names are internal and sanitized.
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE status_code >= ? AND delivered_at IS NOT NULL AND delivered_at <= ? ORDER BY id LIMIT ?",
		s.table,
	)
	res, err := s.db.ExecContext(ctx, query, outbox.StatusError, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: cleanup delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: cleanup rows failed: %w", err)
	}

	return affected, nil
}

// cleanupErrorLog removes whole error-log days before the cutoff, matching
// the daily cleanup granularity of the log.
func (s *Store) cleanupErrorLog(ctx context.Context, before time.Time) (int64, error) {
	// #nosec G201 -- table names are internal and sanitized.
	query := fmt.Sprintf("DELETE FROM %s WHERE day_ts < ?", s.errorsTable)
	res, err := s.db.ExecContext(ctx, query, dayStart(before).Unix())
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: error log cleanup failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: error log cleanup rows failed: %w", err)
	}

	return affected, nil
}

// NewCleanupMaintainer creates a cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = outbox.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = outbox.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	store, err := NewStore(db, WithTable(cfg.Table), WithErrorsTable(cfg.ErrorsTable), WithClock(cfg.Clock))
	if err != nil {
		return nil, err
	}
	cfg.Table = store.table
	cfg.ErrorsTable = store.errorsTable
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run periodically deletes old terminal rows until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if _, err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("outbox cleanup failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("outbox cleanup failed", "err", err)
			}
		}
	}
}

// Ensure executes a single cleanup pass under an advisory lock.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("outbox mysql: cleanup conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return CleanupResult{}, err
	}
	if !locked {
		m.cfg.Logger.Debug("outbox cleanup lock held by another session")

		return CleanupResult{}, nil
	}
	defer m.releaseLock(ctx, conn)

	before := m.cfg.Clock.Now().Add(-m.cfg.Retention)

	return m.store.Cleanup(ctx, CleanupOptions{
		Before:          before,
		Limit:           m.cfg.Limit,
		IncludeFailed:   m.cfg.IncludeFailed,
		IncludeErrorLog: m.cfg.IncludeErrorLog,
	})
}

func (m *CleanupMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.cfg.LockName).Scan(&got); err != nil {
		return false, fmt.Errorf("outbox mysql: acquire cleanup lock failed: %w", err)
	}
	if !got.Valid || got.Int64 == 0 {
		return false, nil
	}

	return true, nil
}

func (m *CleanupMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.cfg.LockName).Scan(&released); err != nil {
		m.cfg.Logger.Warn("outbox cleanup release lock failed", "err", err)
	}
}
