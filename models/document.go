package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/utils"
)

// Document is the ingestion unit: one uploaded artifact, its blob location
// and its lifecycle status. Parsed rows (invoices, bank transactions,
// payroll summaries) reference it by DocumentId.
type Document struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientId     string         `gorm:"type:varchar(36);index;not null" json:"client_id"`
	UserId       string         `gorm:"type:varchar(36)" json:"user_id"`
	Type         DocumentType   `gorm:"type:varchar(20);not null" json:"type"`
	Status       DocumentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	FileName     string         `gorm:"type:varchar(255)" json:"file_name"`
	ContentType  string         `gorm:"type:varchar(100)" json:"content_type"`
	SizeBytes    int64          `json:"size_bytes"`
	StoragePath  string         `gorm:"type:varchar(500)" json:"storage_path"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     JSONMap        `gorm:"type:json" json:"metadata,omitempty"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DocumentStatusPending
	}
	return nil
}

func GetDocumentById(ctx context.Context, db *gorm.DB, documentId string) (*Document, error) {
	var document Document
	err := db.WithContext(ctx).Where("id = ?", documentId).First(&document).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &document, nil
}

func ListDocuments(ctx context.Context, db *gorm.DB, status DocumentStatus, documentType DocumentType, limit int, offset int) ([]Document, int64, error) {
	query := db.WithContext(ctx).Model(&Document{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if documentType != "" {
		query = query.Where("type = ?", documentType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var documents []Document
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&documents).Error
	if err != nil {
		return nil, 0, err
	}
	return documents, total, nil
}

// MarkDocumentProcessing transitions pending -> processing. The status guard
// in the WHERE clause makes concurrent workers race safely: only one wins.
func MarkDocumentProcessing(ctx context.Context, db *gorm.DB, documentId string) (bool, error) {
	result := db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status = ?", documentId, DocumentStatusPending).
		Update("status", DocumentStatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkDocumentCompleted transitions processing -> completed and records what
// the parser produced in the metadata column.
func MarkDocumentCompleted(ctx context.Context, db *gorm.DB, documentId string, metadata JSONMap) error {
	now := time.Now()
	return db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status = ?", documentId, DocumentStatusProcessing).
		Updates(map[string]interface{}{
			"status":        DocumentStatusCompleted,
			"metadata":      metadata,
			"error_message": "",
			"processed_at":  &now,
		}).Error
}

// MarkDocumentFailed transitions processing -> failed with a human-readable
// reason. Called from the top-level recovery path too, so a document never
// stays stuck in processing.
func MarkDocumentFailed(ctx context.Context, db *gorm.DB, documentId string, reason string) error {
	now := time.Now()
	return db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status = ?", documentId, DocumentStatusProcessing).
		Updates(map[string]interface{}{
			"status":        DocumentStatusFailed,
			"error_message": reason,
			"processed_at":  &now,
		}).Error
}

// ResetDocumentForReprocess transitions failed -> pending. Only failed
// documents can be reprocessed; returns false when the document is in any
// other state.
func ResetDocumentForReprocess(ctx context.Context, db *gorm.DB, documentId string) (bool, error) {
	result := db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND status = ?", documentId, DocumentStatusFailed).
		Updates(map[string]interface{}{
			"status":        DocumentStatusPending,
			"error_message": "",
			"processed_at":  nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteDocumentCascade removes the document row and every parsed row
// derived from it, in one transaction. Blob cleanup is the caller's job
// (storage is not transactional with the database).
func DeleteDocumentCascade(ctx context.Context, db *gorm.DB, documentId string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentId).Delete(&InvoiceItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentId).Delete(&Invoice{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentId).Delete(&BankTransaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentId).Delete(&PayrollEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentId).Delete(&PayrollSummary{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", documentId).Delete(&Document{}).Error
	})
}
