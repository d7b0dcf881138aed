package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/ingestion"
	"github.com/contabilhub/contabil_backend/models"
)

const pushTestClientId = "11111111-1111-1111-1111-111111111111"

func newPushTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Use(config.NewTenantGuardPlugin()); err != nil {
		t.Fatalf("tenant guard: %v", err)
	}
	err = db.AutoMigrate(
		&models.Document{}, &models.Invoice{}, &models.InvoiceItem{},
		&models.BankTransaction{}, &models.PayrollSummary{}, &models.PayrollEntry{},
		&models.DocumentEventRecord{}, &models.IdempotencyKey{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	previous := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() { config.SetDB(previous) })
	return db
}

func pushRequest(t *testing.T, messageId string, msg config.DocumentEventMessage) *http.Request {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	envelope := map[string]interface{}{
		"message": map[string]interface{}{
			"data": base64.StdEncoding.EncodeToString(data),
			"id":   messageId,
		},
		"subscription": "projects/test/subscriptions/document-events",
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/pubsub", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newPushRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/pubsub", documentEventPushHandler())
	return r
}

func TestPushHandlerAcksMalformedBody(t *testing.T) {
	newPushTestDB(t)
	r := newPushRouter()

	req := httptest.NewRequest(http.MethodPost, "/pubsub", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Malformed deliveries must be acked, never retried.
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", w.Code)
	}
}

func TestPushHandlerAcksLifecycleEventOnce(t *testing.T) {
	db := newPushTestDB(t)
	r := newPushRouter()

	msg := config.DocumentEventMessage{
		ID:           7,
		ClientId:     pushTestClientId,
		DocumentId:   "doc-1",
		DocumentType: "nfe",
		Event:        models.DocumentEventCompleted,
		OccurredAt:   time.Now().UTC(),
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, pushRequest(t, "msg-1", msg))
	if w.Code != http.StatusNoContent {
		t.Fatalf("first delivery status: got %d, want 204", w.Code)
	}

	var key models.IdempotencyKey
	if err := db.Where("message_id = ?", "msg-1").First(&key).Error; err != nil {
		t.Fatalf("idempotency key not recorded: %v", err)
	}
	if key.Status != models.IdempotencyStatusSucceeded {
		t.Errorf("key status: got %s, want SUCCEEDED", key.Status)
	}

	// Redelivery of the same message id is skipped but still acked.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, pushRequest(t, "msg-1", msg))
	if w.Code != http.StatusNoContent {
		t.Errorf("redelivery status: got %d, want 204", w.Code)
	}

	var count int64
	db.Model(&models.IdempotencyKey{}).Where("message_id = ?", "msg-1").Count(&count)
	if count != 1 {
		t.Errorf("idempotency keys: got %d, want 1", count)
	}
}

func TestPushHandlerProcessReplayFailsDocument(t *testing.T) {
	db := newPushTestDB(t)
	r := newPushRouter()

	store := ingestion.NewMemoryStore()
	store.FailDownload = true
	previousStore := documentStore
	documentStore = store
	t.Cleanup(func() { documentStore = previousStore })

	document := models.Document{
		ID:          "doc-replay",
		ClientId:    pushTestClientId,
		Type:        models.DocumentTypeNFe,
		Status:      models.DocumentStatusPending,
		StoragePath: pushTestClientId + "/missing.xml",
	}
	if err := db.Create(&document).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}

	msg := config.DocumentEventMessage{
		ClientId:   pushTestClientId,
		DocumentId: document.ID,
		Event:      "document.process",
		OccurredAt: time.Now().UTC(),
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, pushRequest(t, "msg-replay", msg))

	// The processing pass ran and failed on the missing blob; that outcome
	// is recorded on the document, not retried by Pub/Sub.
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", w.Code)
	}

	var reloaded models.Document
	db.Where("id = ? AND client_id = ?", document.ID, pushTestClientId).First(&reloaded)
	if reloaded.Status != models.DocumentStatusFailed {
		t.Errorf("document status: got %s, want failed", reloaded.Status)
	}
}
