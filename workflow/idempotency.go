package workflow

import (
	"errors"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/models"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	// sqlite (tests) reports unique violations as a plain error string.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil) meaning "skip safely".
func BeginIdempotency(tx *gorm.DB, clientId, handlerName, messageId string) (skip bool, err error) {
	key := models.IdempotencyKey{
		ClientId:    clientId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("client_id = ? AND handler_name = ? AND message_id = ?", clientId, handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		// If another worker is currently processing, ask Pub/Sub to retry.
		// If it's stale, let it retry by reusing same row (set STARTED again).
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, ErrIdempotencyInProgress
		}
		return false, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	case models.IdempotencyStatusFailed:
		return false, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	default:
		return false, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	}
}

// FinishIdempotency records the terminal outcome of the handler run.
func FinishIdempotency(tx *gorm.DB, clientId, handlerName, messageId string, handlerErr error) error {
	updates := map[string]interface{}{
		"status":     models.IdempotencyStatusSucceeded,
		"last_error": nil,
	}
	if handlerErr != nil {
		msg := handlerErr.Error()
		updates["status"] = models.IdempotencyStatusFailed
		updates["last_error"] = &msg
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("client_id = ? AND handler_name = ? AND message_id = ?", clientId, handlerName, messageId).
		Updates(updates).Error
}
