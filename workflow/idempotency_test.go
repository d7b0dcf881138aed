package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/contabilhub/contabil_backend/models"
)

func TestIdempotencyLifecycle(t *testing.T) {
	db := newTestDB(t)

	skip, err := BeginIdempotency(db, testClientId, "document-event", "msg-1")
	if err != nil || skip {
		t.Fatalf("first begin: skip=%v err=%v", skip, err)
	}

	if err := FinishIdempotency(db, testClientId, "document-event", "msg-1", nil); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// Redelivery of a handled message is skipped safely.
	skip, err = BeginIdempotency(db, testClientId, "document-event", "msg-1")
	if err != nil {
		t.Fatalf("redelivery begin: %v", err)
	}
	if !skip {
		t.Error("succeeded message must be skipped on redelivery")
	}
}

func TestIdempotencyFailedRunsRetry(t *testing.T) {
	db := newTestDB(t)

	if _, err := BeginIdempotency(db, testClientId, "document-event", "msg-2"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := FinishIdempotency(db, testClientId, "document-event", "msg-2", errors.New("parse failed")); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	var key models.IdempotencyKey
	db.Where("message_id = ?", "msg-2").First(&key)
	if key.Status != models.IdempotencyStatusFailed || key.LastError == nil {
		t.Fatalf("failed key: %+v", key)
	}

	skip, err := BeginIdempotency(db, testClientId, "document-event", "msg-2")
	if err != nil || skip {
		t.Errorf("failed message must be retryable: skip=%v err=%v", skip, err)
	}
}

func TestIdempotencyInProgressBlocksConcurrentDelivery(t *testing.T) {
	db := newTestDB(t)

	if _, err := BeginIdempotency(db, testClientId, "document-event", "msg-3"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	// A second delivery while the first is still running must be pushed back.
	if _, err := BeginIdempotency(db, testClientId, "document-event", "msg-3"); err != ErrIdempotencyInProgress {
		t.Fatalf("got %v, want ErrIdempotencyInProgress", err)
	}

	// A stale STARTED row (worker died) is reclaimable.
	stale := time.Now().Add(-10 * time.Minute)
	db.Model(&models.IdempotencyKey{}).Where("message_id = ?", "msg-3").Update("updated_at", stale)
	skip, err := BeginIdempotency(db, testClientId, "document-event", "msg-3")
	if err != nil || skip {
		t.Errorf("stale started row must be reclaimable: skip=%v err=%v", skip, err)
	}
}
