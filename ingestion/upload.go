package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

var ErrInvalidDocumentType = errors.New("invalid document type")

// UploadInput is one upload request. Content arrives already decoded.
type UploadInput struct {
	Type        models.DocumentType
	FileName    string
	ContentType string
	Content     []byte
	Metadata    models.JSONMap
}

// UploadDocument stores the blob first and only then creates the database
// row. If the insert fails the already-uploaded blob is deleted so no
// orphaned storage object is left behind.
func (o *Orchestrator) UploadDocument(ctx context.Context, input UploadInput) (*models.Document, error) {
	if !input.Type.IsValid() {
		return nil, ErrInvalidDocumentType
	}
	clientId, ok := utils.GetClientIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorUnauthorized
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	storagePath := fmt.Sprintf("%s/%s%s", clientId, uuid.NewString(), path.Ext(input.FileName))

	if err := o.store.Upload(ctx, storagePath, input.Content, input.ContentType); err != nil {
		return nil, fmt.Errorf("failed to upload file: %v", err)
	}

	document := models.Document{
		ClientId:    clientId,
		UserId:      userId,
		Type:        input.Type,
		Status:      models.DocumentStatusPending,
		FileName:    input.FileName,
		ContentType: input.ContentType,
		SizeBytes:   int64(len(input.Content)),
		StoragePath: storagePath,
		Metadata:    input.Metadata,
	}

	if err := o.db.WithContext(ctx).Create(&document).Error; err != nil {
		// Compensating delete: the blob write is durable but the metadata
		// row never existed.
		if delErr := o.store.Delete(ctx, storagePath); delErr != nil {
			config.LogError(o.logger, "ingestion", "UploadDocument", storagePath, nil, delErr)
		}
		return nil, fmt.Errorf("failed to create document: %v", err)
	}

	return &document, nil
}

// DeleteDocument removes the database rows (cascading to parsed records)
// and then the blob. Publishes a deleted event after the rows are gone.
func (o *Orchestrator) DeleteDocument(ctx context.Context, documentId string) error {
	document, err := models.GetDocumentById(ctx, o.db, documentId)
	if err != nil {
		return err
	}

	if err := models.DeleteDocumentCascade(ctx, o.db, document.ID); err != nil {
		return err
	}

	if document.StoragePath != "" {
		if err := o.store.Delete(ctx, document.StoragePath); err != nil {
			config.LogError(o.logger, "ingestion", "DeleteDocument", document.StoragePath, nil, err)
		}
	}

	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return o.enqueueEvent(ctx, tx, document, models.DocumentEventDeleted, nil)
	})
	if err != nil {
		config.LogError(o.logger, "ingestion", "DeleteDocument", document.ID, nil, err)
	}
	return nil
}
