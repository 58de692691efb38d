package outbox

import (
	"errors"
	"testing"
	"time"
)

func testDelivery() Delivery {
	return Delivery{
		MsgID:     "11111111-1111-1111-1111-111111111111",
		PayloadID: "p-1",
		TenantID:  7,
		Part:      "orders",
		Payload:   []byte(`{"id":1}`),
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Attempt:   2,
	}
}

func TestMsgContextAccessors(t *testing.T) {
	now := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	msg := newMsgContext(testDelivery(), testEvent{ID: 1}, fixedClock{now: now})

	if msg.Payload().ID != 1 {
		t.Fatalf("unexpected payload")
	}
	if msg.PayloadID() != "p-1" {
		t.Fatalf("unexpected payload id: %s", msg.PayloadID())
	}
	if msg.TenantID() != 7 {
		t.Fatalf("unexpected tenant: %d", msg.TenantID())
	}
	if msg.Attempt() != 2 {
		t.Fatalf("unexpected attempt: %d", msg.Attempt())
	}
	if !msg.Now().Equal(now) {
		t.Fatalf("unexpected now: %v", msg.Now())
	}
	if msg.Decided() {
		t.Fatalf("fresh context must be undecided")
	}

	rebuilt := msg.Message()
	if rebuilt.PayloadID != "p-1" || rebuilt.PartInfo.Part != "orders" || rebuilt.PartInfo.TenantID != 7 {
		t.Fatalf("unexpected rebuilt message: %+v", rebuilt)
	}
}

func TestMsgContextLastDecisionWins(t *testing.T) {
	msg := newMsgContext(testDelivery(), testEvent{}, SystemClock{})

	msg.Warn(errors.New("first"))
	msg.Ok()

	if msg.Status() != StatusOk {
		t.Fatalf("expected StatusOk, got %d", msg.Status())
	}
	outcome := msg.outcome()
	if outcome.Err != nil {
		t.Fatalf("expected error cleared, got %v", outcome.Err)
	}
}

func TestMsgContextPostponeSetsVisibility(t *testing.T) {
	now := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	msg := newMsgContext(testDelivery(), testEvent{}, fixedClock{now: now})

	msg.Postpone(10 * time.Minute)

	if msg.Status() != StatusPostponed {
		t.Fatalf("expected StatusPostponed, got %d", msg.Status())
	}
	outcome := msg.outcome()
	if !outcome.Until.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected until: %v", outcome.Until)
	}
}

func TestMsgContextDecisionClearsUntil(t *testing.T) {
	msg := newMsgContext(testDelivery(), testEvent{}, SystemClock{})

	msg.Postpone(time.Minute)
	msg.Ok()

	if !msg.outcome().Until.IsZero() {
		t.Fatalf("expected until cleared after new decision")
	}
}

func TestMsgContextErrorCodeFloor(t *testing.T) {
	msg := newMsgContext(testDelivery(), testEvent{}, SystemClock{})

	msg.ErrorCode(404, errors.New("not found"))

	if msg.Status() != StatusError {
		t.Fatalf("expected code raised to StatusError, got %d", msg.Status())
	}

	msg.ErrorCode(503, errors.New("unavailable"))
	if msg.Status() != 503 {
		t.Fatalf("expected 503 kept, got %d", msg.Status())
	}
}

func TestMsgContextOutcomeCarriesAttempt(t *testing.T) {
	msg := newMsgContext(testDelivery(), testEvent{}, SystemClock{})

	msg.Warn(errors.New("boom"))

	outcome := msg.outcome()
	if outcome.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", outcome.Attempt)
	}
	if outcome.MsgID != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("unexpected msg id: %s", outcome.MsgID)
	}
}
