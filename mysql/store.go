package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dundich/outbox"
)

const maxErrorLen = 1024

// Store implements the outbox store contracts on MySQL: the bulk writer,
// the rent/return/extend lease protocol, the type table, the error log,
// and tenant detection.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries

	table       string
	typesTable  string
	errorsTable string
}

var _ outbox.BulkWriter = (*Store)(nil)
var _ outbox.DeliveryManager = (*Store)(nil)
var _ outbox.TypeStore = (*Store)(nil)
var _ outbox.TenantDetector = (*Store)(nil)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	typesTable, err := sanitizeTableName(cfg.TypesTable)
	if err != nil {
		return nil, err
	}
	errorsTable, err := sanitizeTableName(cfg.ErrorsTable)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:          db,
		cfg:         cfg,
		queries:     newQueries(table, typesTable, errorsTable),
		table:       table,
		typesTable:  typesTable,
		errorsTable: errorsTable,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// LockOwner returns the lease owner identity of this store instance.
func (s *Store) LockOwner() string {
	return s.cfg.LockOwner
}

// WriteBatch inserts a batch of envelopes with a single multi-row insert.
// The target partition is ensured first when a partition ensurer is wired.
func (s *Store) WriteBatch(ctx context.Context, batch []outbox.Envelope) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	if err := s.ensureParts(ctx, batch[0].CreatedAt, batch[0].TenantID); err != nil {
		return 0, err
	}

	const argsPerRow = 9
	args := make([]any, 0, len(batch)*argsPerRow)
	for _, envelope := range batch {
		id, err := uuid.NewV7()
		if err != nil {
			return 0, fmt.Errorf("outbox mysql: generate id failed: %w", err)
		}
		createdAt := envelope.CreatedAt.UTC()
		args = append(args,
			id[:],
			envelope.PayloadID,
			envelope.TenantID,
			envelope.Part,
			envelope.TypeCode,
			envelope.Payload,
			outbox.StatusPending,
			createdAt,
			createdAt.Unix(),
		)
	}

	query := buildInsertQuery(s.table, len(batch))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("outbox mysql: insert failed: %w", err)
	}

	return len(batch), nil
}

// Rent claims up to len(buf) eligible messages for filter under a lease of
// lockDuration. Eligible rows are pending and visible, or processing with
// an expired lease. Selection and marking happen in one READ COMMITTED
// transaction with SKIP LOCKED, so concurrent workers never double-claim.
func (s *Store) Rent(ctx context.Context, buf []outbox.Delivery, lockDuration time.Duration, filter outbox.Filter) (int, error) {
	if len(buf) == 0 {
		return 0, outbox.ErrInvalidBatchSize
	}

	now := s.cfg.Clock.Now()
	if err := s.ensureParts(ctx, now, filter.TenantID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: begin tx failed: %w", err)
	}

	count, err := s.rentTx(ctx, tx, buf, now, lockDuration, filter)
	if err != nil {
		rollbackErr := rollback(tx)

		return 0, errors.Join(err, rollbackErr)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("outbox mysql: rent commit failed: %w", err)
	}

	return count, nil
}

func (s *Store) rentTx(ctx context.Context, tx *sql.Tx, buf []outbox.Delivery, now time.Time, lockDuration time.Duration, filter outbox.Filter) (int, error) {
	rows, err := tx.QueryContext(
		ctx,
		s.queries.selectEligible,
		filter.Part,
		filter.TenantID,
		minCreatedTS(filter.MinCreatedAt),
		outbox.StatusPending,
		now,
		outbox.StatusProcessing,
		now,
		len(buf),
	)
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: select failed: %w", err)
	}
	defer rows.Close()

	count := 0
	ids := make([]any, 0, len(buf))
	for rows.Next() {
		var (
			id        []byte
			payloadID string
			tenantID  int64
			part      string
			typeCode  int64
			payload   []byte
			createdAt time.Time
			attempts  int
		)
		if err := rows.Scan(&id, &payloadID, &tenantID, &part, &typeCode, &payload, &createdAt, &attempts); err != nil {
			return 0, fmt.Errorf("outbox mysql: scan failed: %w", err)
		}

		msgID, err := msgIDString(id)
		if err != nil {
			return 0, err
		}

		buf[count] = outbox.Delivery{
			MsgID:     msgID,
			PayloadID: payloadID,
			TenantID:  tenantID,
			Part:      part,
			TypeCode:  typeCode,
			Payload:   payload,
			CreatedAt: createdAt,
			// Attempt reflects the increment applied below.
			Attempt: attempts + 1,
		}
		ids = append(ids, id)
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox mysql: rows failed: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(s.queries.markRented, makePlaceholders(count))
	args := make([]any, 0, count+3)
	args = append(args, outbox.StatusProcessing, s.cfg.LockOwner, now.Add(lockDuration))
	args = append(args, ids...)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("outbox mysql: mark rented failed: %w", err)
	}

	return count, nil
}

// Return applies the status state machine for each outcome in one
// transaction. Rows whose lease was lost to another worker are skipped;
// the design accepts that lost update, bounded by the lock duration.
func (s *Store) Return(ctx context.Context, outcomes []outbox.Outcome, filter outbox.Filter) (int, error) {
	if len(outcomes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: begin tx failed: %w", err)
	}

	count, err := s.returnTx(ctx, tx, outcomes, filter)
	if err != nil {
		rollbackErr := rollback(tx)

		return 0, errors.Join(err, rollbackErr)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("outbox mysql: return commit failed: %w", err)
	}

	return count, nil
}

func (s *Store) returnTx(ctx context.Context, tx *sql.Tx, outcomes []outbox.Outcome, filter outbox.Filter) (int, error) {
	now := s.cfg.Clock.Now()

	count := 0
	for _, outcome := range outcomes {
		id, err := msgIDBytes(outcome.MsgID)
		if err != nil {
			return 0, err
		}

		applied, err := s.applyOutcome(ctx, tx, id, outcome, filter, now)
		if err != nil {
			return 0, err
		}
		if applied {
			count++
		}
	}

	return count, nil
}

func (s *Store) applyOutcome(ctx context.Context, tx *sql.Tx, id []byte, outcome outbox.Outcome, filter outbox.Filter, now time.Time) (bool, error) {
	status := outcome.Status

	switch {
	case status.IsSuccess() || status == outbox.StatusMovedPermanently:
		return s.finish(ctx, tx, id, status, outcome, filter, now, false)

	case status == outbox.StatusPostponed:
		res, err := tx.ExecContext(ctx, s.queries.postponeOne, outbox.StatusPending, outcome.Until.UTC(), id, s.cfg.LockOwner)
		if err != nil {
			return false, fmt.Errorf("outbox mysql: postpone update failed: %w", err)
		}

		return oneApplied(res)

	case status.IsWarning():
		if outcome.Attempt > filter.MaxAttempts {
			return s.finish(ctx, tx, id, outbox.StatusMaxAttemptsError, outcome, filter, now, true)
		}
		res, err := tx.ExecContext(ctx, s.queries.requeueOne, outbox.StatusPending, outcomeError(outcome), id, s.cfg.LockOwner)
		if err != nil {
			return false, fmt.Errorf("outbox mysql: requeue update failed: %w", err)
		}

		return oneApplied(res)

	case status.IsError():
		return s.finish(ctx, tx, id, status, outcome, filter, now, true)

	default:
		return false, fmt.Errorf("outbox mysql: unexpected outcome status %d", status)
	}
}

// finish marks a row terminal and, for the error family, records the
// failure in the error log keyed by tenant and day.
func (s *Store) finish(ctx context.Context, tx *sql.Tx, id []byte, status outbox.StatusCode, outcome outbox.Outcome, filter outbox.Filter, now time.Time, logError bool) (bool, error) {
	res, err := tx.ExecContext(ctx, s.queries.finishOne, status, nullableError(outcome), now, id, s.cfg.LockOwner)
	if err != nil {
		return false, fmt.Errorf("outbox mysql: finish update failed: %w", err)
	}
	applied, err := oneApplied(res)
	if err != nil || !applied {
		return applied, err
	}

	if logError {
		_, err = tx.ExecContext(
			ctx,
			s.queries.insertError,
			id,
			filter.TenantID,
			filter.Part,
			status,
			outcomeError(outcome),
			dayStart(now).Unix(),
			now,
		)
		if err != nil {
			return false, fmt.Errorf("outbox mysql: error log insert failed: %w", err)
		}
	}

	return true, nil
}

// Extend bulk-extends the lease expiry for rows this worker currently has
// processing under filter.
func (s *Store) Extend(ctx context.Context, lockExpiresAt time.Time, filter outbox.Filter) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		s.queries.extendLease,
		lockExpiresAt.UTC(),
		filter.Part,
		filter.TenantID,
		outbox.StatusProcessing,
		s.cfg.LockOwner,
	)
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: extend failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: extend rows failed: %w", err)
	}

	return int(affected), nil
}

// InsertType stores a (code, name) pair. First writer wins; replays are
// no-ops.
func (s *Store) InsertType(ctx context.Context, code int64, name string) error {
	if _, err := s.db.ExecContext(ctx, s.queries.insertType, code, name); err != nil {
		return fmt.Errorf("outbox mysql: type insert failed: %w", err)
	}

	return nil
}

// LoadTypes returns the persisted type table.
func (s *Store) LoadTypes(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.loadTypes)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: type load failed: %w", err)
	}
	defer rows.Close()

	types := make(map[int64]string)
	for rows.Next() {
		var (
			code int64
			name string
		)
		if err := rows.Scan(&code, &name); err != nil {
			return nil, fmt.Errorf("outbox mysql: type scan failed: %w", err)
		}
		types[code] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox mysql: type rows failed: %w", err)
	}

	return types, nil
}

// DetectTenants returns distinct tenant ids with pending messages for a
// consumer group.
func (s *Store) DetectTenants(ctx context.Context, part string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.detectTenants, part, outbox.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: detect tenants failed: %w", err)
	}
	defer rows.Close()

	tenants := make([]int64, 0)
	for rows.Next() {
		var tenantID int64
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("outbox mysql: tenant scan failed: %w", err)
		}
		tenants = append(tenants, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox mysql: tenant rows failed: %w", err)
	}

	return tenants, nil
}

func (s *Store) ensureParts(ctx context.Context, date time.Time, tenantID int64) error {
	if s.cfg.Parts == nil {
		return nil
	}
	if err := s.cfg.Parts.EnsureParts(ctx, date, []int64{tenantID}); err != nil {
		return fmt.Errorf("outbox mysql: ensure parts failed: %w", err)
	}

	return nil
}

func rollback(tx *sql.Tx) error {
	err := tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}

func oneApplied(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("outbox mysql: rows affected failed: %w", err)
	}

	return affected > 0, nil
}

func minCreatedTS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UTC().Unix()
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func outcomeError(outcome outbox.Outcome) string {
	if outcome.Err == nil {
		return outcome.Note
	}

	return truncateError(outcome.Err)
}

func nullableError(outcome outbox.Outcome) any {
	text := outcomeError(outcome)
	if text == "" {
		return nil
	}

	return text
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	runes := []rune(msg)

	return string(runes[:maxErrorLen])
}

func msgIDString(raw []byte) (string, error) {
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMsgID, err)
	}

	return id.String(), nil
}

func msgIDBytes(value string) ([]byte, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMsgID, value)
	}

	return id[:], nil
}
