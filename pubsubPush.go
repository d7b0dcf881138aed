package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/ingestion"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
	"github.com/contabilhub/contabil_backend/workflow"
)

// pubSubPushEnvelope is the push-delivery wrapper Pub/Sub wraps around the
// published message. Data is base64 on the wire; the byte-slice unmarshal
// decodes it.
type pubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Replayed document.process commands for the same tenant must not run
// concurrently inside one instance.
var (
	clientMutexMap = make(map[string]*sync.Mutex)
	globalMutex    sync.Mutex
)

func getClientMutex(clientId string) *sync.Mutex {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	mu, ok := clientMutexMap[clientId]
	if !ok {
		mu = &sync.Mutex{}
		clientMutexMap[clientId] = mu
	}
	return mu
}

const documentEventHandlerName = "document-event"

// documentEventPushHandler receives Pub/Sub push deliveries of document
// events. Delivery is at-least-once, so handling is idempotent: malformed
// messages are acked to stop retry loops, real failures return non-2xx so
// Pub/Sub redelivers.
func documentEventPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server", "documentEventPushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		var envelope pubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "server", "documentEventPushHandler", "unmarshal envelope", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		var msg config.DocumentEventMessage
		if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
			config.LogError(logger, "server", "documentEventPushHandler", "unmarshal message", string(envelope.Message.Data), err)
			c.Status(http.StatusNoContent)
			return
		}

		if msg.ClientId == "" || msg.Event == "" {
			config.LogError(logger, "server", "documentEventPushHandler", "missing required fields", msg, errors.New("client_id/event required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationId := msg.CorrelationId
		if correlationId == "" {
			correlationId = envelope.Message.ID
		}

		// Redis lock is a best-effort optimization to avoid long in-request
		// blocking; correctness does not depend on it. The per-client mutex
		// and the MySQL advisory lock serialize the actual handling.
		var lock *redislock.Lock
		if locker := config.GetRedisLock(); locker != nil {
			lock, err = locker.Obtain(c.Request.Context(), "lock:ingest:"+msg.ClientId, 30*time.Second, nil)
			if err != nil {
				logger.WithFields(logrus.Fields{
					"field":      "documentEventPushHandler",
					"client_id":  msg.ClientId,
					"message_id": envelope.Message.ID,
				}).Warn("proceeding without redis lock: " + err.Error())
				lock = nil
			}
		}
		defer func() {
			if lock != nil {
				_ = lock.Release(c.Request.Context())
			}
		}()

		ctx := utils.SetClientIdInContext(c.Request.Context(), msg.ClientId)
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)

		if err := handleDocumentEvent(ctx, logger, envelope.Message.ID, msg); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "documentEventPushHandler",
				"client_id":      msg.ClientId,
				"document_id":    msg.DocumentId,
				"event":          msg.Event,
				"message_id":     envelope.Message.ID,
				"correlation_id": correlationId,
			}).Error("pubsub processing failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and eventually route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// handleDocumentEvent runs one delivered event exactly once per message id.
// document.process replays the ingestion pass; lifecycle events are
// informational and only logged here.
func handleDocumentEvent(ctx context.Context, logger *logrus.Logger, messageId string, msg config.DocumentEventMessage) error {
	db := config.GetDB()
	if db == nil {
		return errors.New("database not ready")
	}
	if messageId == "" {
		messageId = fmt.Sprintf("outbox:%d", msg.ID)
	}

	mu := getClientMutex(msg.ClientId)
	mu.Lock()
	defer mu.Unlock()

	skip, err := workflow.BeginIdempotency(db, msg.ClientId, documentEventHandlerName, messageId)
	if err != nil {
		return err
	}
	if skip {
		logger.WithFields(logrus.Fields{
			"field":      "handleDocumentEvent",
			"client_id":  msg.ClientId,
			"message_id": messageId,
		}).Info("duplicate delivery skipped")
		return nil
	}

	// Serialize per tenant across instances too. GET_LOCK is MySQL only;
	// single-instance setups already hold the client mutex.
	if db.Dialector.Name() == "mysql" {
		if err := workflow.AcquireClientIngestLock(db, msg.ClientId); err != nil {
			return err
		}
		defer workflow.ReleaseClientIngestLock(db, msg.ClientId)
	}

	handlerErr := dispatchDocumentEvent(ctx, logger, msg)
	if err := workflow.FinishIdempotency(db, msg.ClientId, documentEventHandlerName, messageId, handlerErr); err != nil {
		config.LogError(logger, "server", "handleDocumentEvent", messageId, nil, err)
	}
	return handlerErr
}

func dispatchDocumentEvent(ctx context.Context, logger *logrus.Logger, msg config.DocumentEventMessage) error {
	switch msg.Event {
	case "document.process":
		result, err := newOrchestrator().ProcessDocument(ctx, msg.DocumentId)
		if err != nil {
			// Redelivery cannot fix a missing or already-claimed document.
			if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, ingestion.ErrDocumentNotPending) {
				logger.WithFields(logrus.Fields{
					"field":       "dispatchDocumentEvent",
					"client_id":   msg.ClientId,
					"document_id": msg.DocumentId,
				}).Warn("replay skipped: " + err.Error())
				return nil
			}
			return err
		}
		logger.WithFields(logrus.Fields{
			"field":       "dispatchDocumentEvent",
			"client_id":   msg.ClientId,
			"document_id": msg.DocumentId,
			"status":      result.Status,
		}).Info("replayed document processed")
		return nil
	case models.DocumentEventCompleted, models.DocumentEventFailed, models.DocumentEventDeleted:
		logger.WithFields(logrus.Fields{
			"field":       "dispatchDocumentEvent",
			"client_id":   msg.ClientId,
			"document_id": msg.DocumentId,
			"event":       msg.Event,
		}).Info("document lifecycle event received")
		return nil
	default:
		// Unknown events are acked, not retried: redelivery cannot fix them.
		logger.WithFields(logrus.Fields{
			"field":     "dispatchDocumentEvent",
			"client_id": msg.ClientId,
			"event":     msg.Event,
		}).Warn("unknown document event ignored")
		return nil
	}
}
