package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireClientIngestLock serializes event handling per tenant across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that will do the handling transaction.
func AcquireClientIngestLock(tx *gorm.DB, clientId string) error {
	lockName := fmt.Sprintf("ingest:%s", clientId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire ingest lock for client_id=%s", clientId)
	}
	return nil
}

func ReleaseClientIngestLock(tx *gorm.DB, clientId string) {
	lockName := fmt.Sprintf("ingest:%s", clientId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
