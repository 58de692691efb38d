package mysql

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dundich/outbox"
)

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil); !errors.Is(err, ErrDBRequired) {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithTable("bad name")); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithTypesTable("bad;name")); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
}

func TestNewStoreDefaults(t *testing.T) {
	store, err := NewStore(&sql.DB{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.table != "outbox" || store.typesTable != "outbox_types" || store.errorsTable != "outbox_errors" {
		t.Fatalf("unexpected table names: %s, %s, %s", store.table, store.typesTable, store.errorsTable)
	}
	if store.LockOwner() == "" {
		t.Fatalf("expected generated lock owner")
	}
}

func TestStoreLockOwnerOption(t *testing.T) {
	store, err := NewStore(&sql.DB{}, WithLockOwner("worker-1"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.LockOwner() != "worker-1" {
		t.Fatalf("unexpected lock owner: %s", store.LockOwner())
	}
}

func TestMsgIDRoundTrip(t *testing.T) {
	raw, err := msgIDBytes("11111111-2222-3333-4444-555555555555")
	if err != nil {
		t.Fatalf("msg id bytes: %v", err)
	}
	if len(raw) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(raw))
	}
	value, err := msgIDString(raw)
	if err != nil {
		t.Fatalf("msg id string: %v", err)
	}
	if value != "11111111-2222-3333-4444-555555555555" {
		t.Fatalf("unexpected round trip: %s", value)
	}
}

func TestMsgIDInvalid(t *testing.T) {
	if _, err := msgIDBytes("not-a-uuid"); !errors.Is(err, ErrInvalidMsgID) {
		t.Fatalf("expected ErrInvalidMsgID, got %v", err)
	}
	if _, err := msgIDString([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidMsgID) {
		t.Fatalf("expected ErrInvalidMsgID, got %v", err)
	}
}

func TestTruncateError(t *testing.T) {
	short := errors.New("boom")
	if got := truncateError(short); got != "boom" {
		t.Fatalf("unexpected truncation: %s", got)
	}

	long := errors.New(strings.Repeat("я", maxErrorLen+100))
	got := truncateError(long)
	if len([]rune(got)) != maxErrorLen {
		t.Fatalf("expected %d runes, got %d", maxErrorLen, len([]rune(got)))
	}
}

func TestOutcomeError(t *testing.T) {
	withErr := outbox.Outcome{Err: errors.New("boom"), Note: "ignored"}
	if got := outcomeError(withErr); got != "boom" {
		t.Fatalf("expected error text, got %s", got)
	}

	noteOnly := outbox.Outcome{Note: "skipped by rule"}
	if got := outcomeError(noteOnly); got != "skipped by rule" {
		t.Fatalf("expected note, got %s", got)
	}

	if nullableError(outbox.Outcome{}) != nil {
		t.Fatalf("expected nil for empty outcome")
	}
	if nullableError(noteOnly) != "skipped by rule" {
		t.Fatalf("expected note for nullable error")
	}
}

func TestMinCreatedTS(t *testing.T) {
	if got := minCreatedTS(time.Time{}); got != 0 {
		t.Fatalf("expected 0 for zero time, got %d", got)
	}
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	if got := minCreatedTS(at); got != at.Unix() {
		t.Fatalf("expected %d, got %d", at.Unix(), got)
	}
}

func TestDayStart(t *testing.T) {
	at := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := dayStart(at); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
