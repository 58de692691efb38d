package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dundich/outbox"
)

const (
	defaultPartsLookaheadDay   = 30 * 24 * time.Hour
	defaultPartsLookaheadMonth = 90 * 24 * time.Hour
	defaultPartsCheckEvery     = time.Hour
	defaultPartsLockPrefix     = "outbox:parts:"
	qualifiedTableParts        = 2
)

// PartitionPeriod defines the range partition granularity of the messages
// table. The error log is always maintained daily.
type PartitionPeriod int

const (
	// PartitionDay maintains daily partitions.
	PartitionDay PartitionPeriod = iota + 1
	// PartitionMonth maintains monthly partitions.
	PartitionMonth
)

// PartsConfig controls partition creation and cleanup for the messages
// table and the error log.
type PartsConfig struct {
	// Table is the outbox messages table name.
	Table string
	// TypesTable is the type table name, created by Migrate.
	TypesTable string
	// ErrorsTable is the error log table name.
	ErrorsTable string
	// Period controls messages partition granularity (day or month).
	Period PartitionPeriod
	// Lookahead defines how far ahead to create partitions.
	Lookahead time.Duration
	// CheckEvery is the interval between partition checks in Run.
	CheckEvery time.Duration
	// LockName is the advisory lock name. Defaults to outbox:parts:<table>.
	LockName string
	// Retention drops message partitions older than now-retention
	// (0 disables dropping).
	Retention time.Duration
	// ErrorsRetention drops error-log days older than now-retention
	// (0 disables dropping).
	ErrorsRetention time.Duration
	// Clock overrides the time source (useful for tests).
	Clock outbox.Clock
	// Logger receives warnings about maintenance failures.
	Logger outbox.Logger
}

// PartsMaintainer keeps range partitions ahead of time for the messages
// table and the error log, trims old ones, and serves the engine's Parts
// contract.
//
// The MySQL layout partitions by time only; tenants are a plain column, so
// the tenant ids passed to EnsureParts carry no partition values here.
type PartsMaintainer struct {
	db  *sql.DB
	cfg PartsConfig

	mu           sync.Mutex
	coveredUntil map[string]time.Time
}

var _ outbox.Parts = (*PartsMaintainer)(nil)

// NewPartsMaintainer creates a maintainer with defaults applied.
//
// Example usage:
//
//	parts, err := mysql.NewPartsMaintainer(db, mysql.PartsConfig{
//		Period:    mysql.PartitionDay,
//		Lookahead: 30 * 24 * time.Hour,
//		Retention: 7 * 24 * time.Hour,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	go func() {
//		_ = parts.Run(ctx)
//	}()
func NewPartsMaintainer(db *sql.DB, cfg PartsConfig) (*PartsMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if cfg.TypesTable == "" {
		cfg.TypesTable = defaultTypesTable
	}
	if cfg.ErrorsTable == "" {
		cfg.ErrorsTable = defaultErrorsTable
	}
	for _, name := range []string{cfg.Table, cfg.TypesTable, cfg.ErrorsTable} {
		if _, err := sanitizeTableName(name); err != nil {
			return nil, err
		}
	}
	if cfg.Period != PartitionDay && cfg.Period != PartitionMonth {
		return nil, ErrPartitionPeriodRequired
	}
	if cfg.Clock == nil {
		cfg.Clock = outbox.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = outbox.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultPartsCheckEvery
	}
	if cfg.Lookahead <= 0 {
		switch cfg.Period {
		case PartitionDay:
			cfg.Lookahead = defaultPartsLookaheadDay
		case PartitionMonth:
			cfg.Lookahead = defaultPartsLookaheadMonth
		}
	}
	if cfg.LockName == "" {
		cfg.LockName = defaultPartsLockPrefix + cfg.Table
	}
	if cfg.Retention < 0 || cfg.ErrorsRetention < 0 {
		return nil, ErrPartitionRetentionInvalid
	}

	return &PartsMaintainer{
		db:           db,
		cfg:          cfg,
		coveredUntil: make(map[string]time.Time),
	}, nil
}

// Run periodically ensures partitions until the context is canceled.
func (m *PartsMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("outbox parts ensure failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("outbox parts ensure failed", "err", err)
			}
		}
	}
}

// Ensure creates missing partitions ahead of time and drops expired ones
// for both maintained tables.
func (m *PartsMaintainer) Ensure(ctx context.Context) error {
	return m.ensureThrough(ctx, m.cfg.Clock.Now())
}

// EnsureParts implements the engine's Parts contract: it guarantees the
// partitions covering date exist before messages are written or rented.
// Calls are idempotent and cheap once the date is known to be covered.
func (m *PartsMaintainer) EnsureParts(ctx context.Context, date time.Time, _ []int64) error {
	m.mu.Lock()
	covered := m.isCovered(date)
	m.mu.Unlock()
	if covered {
		return nil
	}

	return m.ensureThrough(ctx, date)
}

// Migrate creates the outbox tables when missing, with initial partitions
// for the current period, and returns the number of executed statements.
func (m *PartsMaintainer) Migrate(ctx context.Context) (int, error) {
	now := m.cfg.Clock.Now().UTC()

	messagesDDL, err := PartitionedMessagesSchema(m.cfg.Table, initialPartitions(now, m.cfg.Period))
	if err != nil {
		return 0, err
	}
	typesDDL, err := TypesSchema(m.cfg.TypesTable)
	if err != nil {
		return 0, err
	}
	errorsDDL, err := PartitionedErrorsSchema(m.cfg.ErrorsTable, initialPartitions(now, PartitionDay))
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, ddl := range []string{messagesDDL, typesDDL, errorsDDL} {
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return applied, fmt.Errorf("outbox mysql: migrate failed: %w", err)
		}
		applied++
	}

	if err := m.ensureThrough(ctx, now); err != nil {
		return applied, err
	}

	return applied, nil
}

func initialPartitions(now time.Time, period PartitionPeriod) []Partition {
	start := periodStart(now, period)
	upper := nextPeriod(start, period).Unix()

	return []Partition{
		{Name: partitionName(period, start), LessThan: strconv.FormatInt(upper, 10)},
		{Name: "pmax", LessThan: "MAXVALUE"},
	}
}

// ensureThrough makes sure both tables have partitions covering at least
// through date plus the configured lookahead.
func (m *PartsMaintainer) ensureThrough(ctx context.Context, date time.Time) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("outbox mysql: parts conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return err
	}
	if !locked {
		m.cfg.Logger.Debug("outbox parts lock held by another session")

		return nil
	}
	defer m.releaseLock(ctx, conn)

	tables := []struct {
		name      string
		period    PartitionPeriod
		retention time.Duration
	}{
		{m.cfg.Table, m.cfg.Period, m.cfg.Retention},
		{m.cfg.ErrorsTable, PartitionDay, m.cfg.ErrorsRetention},
	}

	now := m.cfg.Clock.Now().UTC()
	for _, table := range tables {
		covered, err := m.ensureTable(ctx, conn, table.name, table.period, table.retention, now, date)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.coveredUntil[table.name] = covered
		m.mu.Unlock()
	}

	return nil
}

func (m *PartsMaintainer) isCovered(date time.Time) bool {
	if len(m.coveredUntil) == 0 {
		return false
	}
	for _, until := range m.coveredUntil {
		if !date.Before(until) {
			return false
		}
	}

	return true
}

func (m *PartsMaintainer) ensureTable(
	ctx context.Context,
	conn *sql.Conn,
	table string,
	period PartitionPeriod,
	retention time.Duration,
	now, date time.Time,
) (time.Time, error) {
	schema, tableName, err := resolveSchemaTable(ctx, conn, table)
	if err != nil {
		return time.Time{}, err
	}

	info, err := loadPartitions(ctx, conn, schema, tableName)
	if err != nil {
		return time.Time{}, err
	}

	until := now.Add(m.cfg.Lookahead)
	if date.After(until) {
		until = nextPeriod(periodStart(date, period), period)
	}

	plan, err := planPartitionChanges(period, retention, now, until, info)
	if err != nil {
		return time.Time{}, err
	}

	if len(plan.add) > 0 {
		if err := m.reorganizeMax(ctx, conn, table, info.maxName, plan.add); err != nil {
			return time.Time{}, err
		}
	}
	if len(plan.drop) > 0 {
		if err := m.dropPartitions(ctx, conn, table, plan.drop); err != nil {
			return time.Time{}, err
		}
	}

	return plan.coveredUntil, nil
}

type partitionInfo struct {
	maxName  string
	maxUpper int64
	bounds   map[int64]string
	names    map[string]int64
}

type partitionDef struct {
	name       string
	upperBound int64
}

type partitionPlan struct {
	add          []partitionDef
	drop         []string
	coveredUntil time.Time
}

func (m *PartsMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.cfg.LockName).Scan(&got); err != nil {
		return false, fmt.Errorf("outbox mysql: acquire lock failed: %w", err)
	}
	if !got.Valid || got.Int64 == 0 {
		return false, nil
	}

	return true, nil
}

func (m *PartsMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.cfg.LockName).Scan(&released); err != nil {
		m.cfg.Logger.Warn("outbox parts release lock failed", "err", err)
	}
}

func (m *PartsMaintainer) reorganizeMax(ctx context.Context, conn *sql.Conn, table, maxName string, add []partitionDef) error {
	m.cfg.Logger.Info(
		"outbox parts reorganize",
		"table",
		table,
		"pmax",
		maxName,
		"add",
		partitionDefNames(add),
	)
	parts := make([]string, 0, len(add)+1)
	for _, part := range add {
		parts = append(parts, fmt.Sprintf("PARTITION %s VALUES LESS THAN (%d)", part.name, part.upperBound))
	}
	parts = append(parts, fmt.Sprintf("PARTITION %s VALUES LESS THAN (MAXVALUE)", maxName))

	// #nosec G201 -- table and partition names are sanitized.
	stmt := fmt.Sprintf(
		"ALTER TABLE %s REORGANIZE PARTITION %s INTO (%s)",
		table,
		maxName,
		strings.Join(parts, ", "),
	)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("outbox mysql: reorganize partition failed: %w", err)
	}

	return nil
}

func (m *PartsMaintainer) dropPartitions(ctx context.Context, conn *sql.Conn, table string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	m.cfg.Logger.Info(
		"outbox parts drop",
		"table",
		table,
		"partitions",
		names,
	)
	stmt := fmt.Sprintf("ALTER TABLE %s DROP PARTITION %s", table, strings.Join(names, ", "))
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("outbox mysql: drop partitions failed: %w", err)
	}

	return nil
}

func resolveSchemaTable(ctx context.Context, conn *sql.Conn, table string) (schema, tableName string, err error) {
	parts := strings.Split(table, ".")
	if len(parts) == qualifiedTableParts {
		return parts[0], parts[1], nil
	}
	if len(parts) > qualifiedTableParts {
		return "", "", ErrInvalidTableName
	}
	var dbName sql.NullString
	if err := conn.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&dbName); err != nil {
		return "", "", fmt.Errorf("outbox mysql: resolve schema failed: %w", err)
	}
	if !dbName.Valid || dbName.String == "" {
		return "", "", ErrPartitionSchemaRequired
	}

	return dbName.String, table, nil
}

func loadPartitions(ctx context.Context, conn *sql.Conn, schema, table string) (partitionInfo, error) {
	rows, err := conn.QueryContext(ctx, `
SELECT PARTITION_NAME, PARTITION_DESCRIPTION
FROM information_schema.PARTITIONS
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND PARTITION_NAME IS NOT NULL
ORDER BY PARTITION_ORDINAL_POSITION
`, schema, table)
	if err != nil {
		return partitionInfo{}, fmt.Errorf("outbox mysql: list partitions failed: %w", err)
	}
	defer rows.Close()

	info := partitionInfo{
		bounds: make(map[int64]string),
		names:  make(map[string]int64),
	}
	for rows.Next() {
		var (
			name sql.NullString
			desc sql.NullString
		)
		if err := rows.Scan(&name, &desc); err != nil {
			return partitionInfo{}, fmt.Errorf("outbox mysql: scan partitions failed: %w", err)
		}
		if !name.Valid || name.String == "" {
			continue
		}
		if !desc.Valid || desc.String == "" {
			return partitionInfo{}, ErrPartitionDescriptionInvalid
		}
		isMax, upper, err := parsePartitionDescription(desc.String)
		if err != nil {
			return partitionInfo{}, err
		}
		if isMax {
			if info.maxName != "" {
				return partitionInfo{}, ErrPartitionMaxRequired
			}
			info.maxName = name.String

			continue
		}

		info.bounds[upper] = name.String
		info.names[name.String] = upper
		if upper > info.maxUpper {
			info.maxUpper = upper
		}
	}
	if err := rows.Err(); err != nil {
		return partitionInfo{}, fmt.Errorf("outbox mysql: list partitions failed: %w", err)
	}
	if len(info.bounds) == 0 && info.maxName == "" {
		return partitionInfo{}, ErrPartitionedTableRequired
	}
	if info.maxName == "" {
		return partitionInfo{}, ErrPartitionMaxRequired
	}

	return info, nil
}

func parsePartitionDescription(desc string) (isMax bool, upper int64, err error) {
	if strings.EqualFold(desc, "MAXVALUE") {
		return true, 0, nil
	}
	upper, err = strconv.ParseInt(desc, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %s", ErrPartitionDescriptionInvalid, desc)
	}

	return false, upper, nil
}

func planPartitionChanges(period PartitionPeriod, retention time.Duration, now, until time.Time, info partitionInfo) (partitionPlan, error) {
	start := periodStart(now.UTC(), period)

	add := make([]partitionDef, 0)
	names := make(map[string]struct{}, len(info.names))
	for name := range info.names {
		names[name] = struct{}{}
	}

	covered := start
	for {
		next := nextPeriod(start, period)
		upper := next.Unix()
		if upper > info.maxUpper {
			if _, exists := info.bounds[upper]; !exists {
				name := partitionName(period, start)
				if _, clash := names[name]; clash {
					return partitionPlan{}, fmt.Errorf("%w: %s", ErrPartitionNameConflict, name)
				}
				names[name] = struct{}{}
				add = append(add, partitionDef{name: name, upperBound: upper})
			}
		}
		covered = next
		if !next.Before(until) {
			break
		}
		start = next
	}

	drop := make([]string, 0)
	if retention > 0 {
		cutoff := now.Add(-retention).Unix()
		for upper, name := range info.bounds {
			if upper <= cutoff {
				drop = append(drop, name)
			}
		}
		sort.Strings(drop)
	}

	sort.Slice(add, func(i, j int) bool {
		return add[i].upperBound < add[j].upperBound
	})

	return partitionPlan{add: add, drop: drop, coveredUntil: covered}, nil
}

func periodStart(t time.Time, period PartitionPeriod) time.Time {
	t = t.UTC()
	switch period {
	case PartitionDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PartitionMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

func nextPeriod(t time.Time, period PartitionPeriod) time.Time {
	switch period {
	case PartitionDay:
		return t.AddDate(0, 0, 1)
	case PartitionMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t
	}
}

func partitionName(period PartitionPeriod, start time.Time) string {
	switch period {
	case PartitionMonth:
		return fmt.Sprintf("p%04d%02d", start.Year(), int(start.Month()))
	default:
		return fmt.Sprintf("p%04d%02d%02d", start.Year(), int(start.Month()), start.Day())
	}
}

func partitionDefNames(defs []partitionDef) []string {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.name)
	}

	return names
}
