package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/parsers"
	"github.com/contabilhub/contabil_backend/utils"
)

var tracer = otel.Tracer("ingestion")

var (
	ErrDocumentNotPending = errors.New("document is not pending")
	ErrReprocessNotFailed = errors.New("only failed documents can be reprocessed")
	ErrReprocessLocked    = errors.New("document is already being reprocessed")
)

// ProcessResult summarizes what one orchestrator invocation produced. The
// same counts are written to the document's metadata column.
type ProcessResult struct {
	DocumentId string                `json:"document_id"`
	Status     models.DocumentStatus `json:"status"`
	Metadata   models.JSONMap        `json:"metadata,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Orchestrator drives the document state machine:
// pending -> processing -> {completed | failed}. There is no automatic
// retry; failed -> pending only happens through ReprocessDocument.
type Orchestrator struct {
	db     *gorm.DB
	store  ObjectStore
	logger *logrus.Logger
}

func NewOrchestrator(db *gorm.DB, store ObjectStore) *Orchestrator {
	return &Orchestrator{db: db, store: store, logger: config.GetLogger()}
}

// ProcessDocument runs one ingestion pass. Every error after the document
// entered processing is converted to a failed transition, including panics,
// so the document never stays stuck in processing.
func (o *Orchestrator) ProcessDocument(ctx context.Context, documentId string) (result *ProcessResult, err error) {
	ctx, span := tracer.Start(ctx, "ingestion.ProcessDocument",
		trace.WithAttributes(attribute.String("document.id", documentId)))
	defer func() {
		if result != nil {
			span.SetAttributes(attribute.String("document.status", string(result.Status)))
		}
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	document, err := models.GetDocumentById(ctx, o.db, documentId)
	if err != nil {
		return nil, err
	}

	claimed, err := models.MarkDocumentProcessing(ctx, o.db, document.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrDocumentNotPending
	}

	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("internal error: %v", r)
			o.failDocument(ctx, document, reason)
			result = &ProcessResult{DocumentId: document.ID, Status: models.DocumentStatusFailed, Error: reason}
			err = nil
		}
	}()

	data, err := o.store.Download(ctx, document.StoragePath)
	if err != nil {
		reason := fmt.Sprintf("failed to download file: %v", err)
		o.failDocument(ctx, document, reason)
		return &ProcessResult{DocumentId: document.ID, Status: models.DocumentStatusFailed, Error: reason}, nil
	}

	metadata, parseErr := o.parseAndPersist(ctx, document, data)
	if parseErr != nil {
		o.failDocument(ctx, document, parseErr.Error())
		return &ProcessResult{DocumentId: document.ID, Status: models.DocumentStatusFailed, Error: parseErr.Error()}, nil
	}

	if err := o.completeDocument(ctx, document, metadata); err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"module":      "ingestion",
		"document_id": document.ID,
		"type":        document.Type,
		"metadata":    metadata,
	}).Info("document processed")

	return &ProcessResult{DocumentId: document.ID, Status: models.DocumentStatusCompleted, Metadata: metadata}, nil
}

func (o *Orchestrator) parseAndPersist(ctx context.Context, document *models.Document, data []byte) (models.JSONMap, error) {
	switch {
	case document.Type.IsFiscalXml():
		return o.persistInvoice(ctx, document, data)
	case document.Type == models.DocumentTypeOFX:
		return o.persistBankTransactions(ctx, document, data)
	case document.Type == models.DocumentTypePayroll:
		return o.persistPayroll(ctx, document, data)
	default:
		return nil, fmt.Errorf("unsupported document type: %s", document.Type)
	}
}

func (o *Orchestrator) persistInvoice(ctx context.Context, document *models.Document, data []byte) (models.JSONMap, error) {
	parsed, err := parsers.ParseNFe(data)
	if err != nil {
		return nil, err
	}

	invoice := parsed.Invoice
	invoice.ClientId = document.ClientId
	invoice.UserId = document.UserId
	invoice.DocumentId = document.ID

	if err := models.CreateInvoiceWithItems(ctx, o.db, &invoice, parsed.Items); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %v", err)
	}

	return models.JSONMap{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.InvoiceNumber,
		"items_parsed":   len(parsed.Items),
		"net_amount":     invoice.NetAmount.String(),
	}, nil
}

func (o *Orchestrator) persistBankTransactions(ctx context.Context, document *models.Document, data []byte) (models.JSONMap, error) {
	statement, err := parsers.ParseOFX(data)
	if err != nil {
		return nil, err
	}

	for idx := range statement.Transactions {
		statement.Transactions[idx].ClientId = document.ClientId
		statement.Transactions[idx].UserId = document.UserId
		statement.Transactions[idx].DocumentId = document.ID
	}

	inserted, skipped, err := models.InsertIgnoreDuplicates(ctx, o.db, statement.Transactions)
	if err != nil {
		return nil, fmt.Errorf("failed to save transactions: %v", err)
	}

	return models.JSONMap{
		"transactions_total":    len(statement.Transactions),
		"transactions_inserted": inserted,
		"transactions_skipped":  skipped,
		"account_id":            statement.AccountId,
	}, nil
}

// payrollReference reads the upload-time reference and feature flags from
// the document's metadata map.
func payrollReference(document *models.Document) (month int, year int, config parsers.PayrollConfig, err error) {
	config = parsers.DefaultPayrollConfig()
	month = metadataInt(document.Metadata, "reference_month")
	year = metadataInt(document.Metadata, "reference_year")
	if v, ok := document.Metadata["inss_employer_enabled"].(bool); ok {
		config.InssEmployerEnabled = v
	}
	if v, ok := document.Metadata["fgts_enabled"].(bool); ok {
		config.FgtsEnabled = v
	}
	err = models.ValidatePayrollReference(month, year)
	return month, year, config, err
}

func metadataInt(metadata models.JSONMap, key string) int {
	switch v := metadata[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func (o *Orchestrator) persistPayroll(ctx context.Context, document *models.Document, data []byte) (models.JSONMap, error) {
	month, year, payrollConfig, err := payrollReference(document)
	if err != nil {
		return nil, err
	}

	parsed, err := parsers.ParsePayroll(document.FileName, data, payrollConfig)
	if err != nil {
		return nil, err
	}

	summary := models.PayrollSummary{
		ClientId:            document.ClientId,
		UserId:              document.UserId,
		DocumentId:          document.ID,
		ReferenceMonth:      month,
		ReferenceYear:       year,
		TotalEmployees:      parsed.Totals.TotalEmployees,
		TotalGrossSalary:    parsed.Totals.TotalGrossSalary,
		TotalNetSalary:      parsed.Totals.TotalNetSalary,
		TotalInssEmployee:   parsed.Totals.TotalInssEmployee,
		TotalInssEmployer:   parsed.Totals.TotalInssEmployer,
		TotalFgts:           parsed.Totals.TotalFgts,
		TotalIrrf:           parsed.Totals.TotalIrrf,
		TotalOtherDiscounts: parsed.Totals.TotalOtherDiscounts,
		InssEmployerEnabled: payrollConfig.InssEmployerEnabled,
		FgtsEnabled:         payrollConfig.FgtsEnabled,
	}

	if err := models.CreatePayrollSummaryWithEntries(ctx, o.db, &summary, parsed.Entries); err != nil {
		return nil, fmt.Errorf("failed to save payroll data: %v", err)
	}

	return models.JSONMap{
		"payroll_summary_id": summary.ID,
		"total_employees":    parsed.Totals.TotalEmployees,
		"reference_month":    month,
		"reference_year":     year,
	}, nil
}

// completeDocument commits the completed transition and its outbox event
// together.
func (o *Orchestrator) completeDocument(ctx context.Context, document *models.Document, metadata models.JSONMap) error {
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.MarkDocumentCompleted(ctx, tx, document.ID, metadata); err != nil {
			return err
		}
		return o.enqueueEvent(ctx, tx, document, models.DocumentEventCompleted, metadata)
	})
}

func (o *Orchestrator) failDocument(ctx context.Context, document *models.Document, reason string) {
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.MarkDocumentFailed(ctx, tx, document.ID, reason); err != nil {
			return err
		}
		return o.enqueueEvent(ctx, tx, document, models.DocumentEventFailed, models.JSONMap{"error": reason})
	})
	if err != nil {
		config.LogError(o.logger, "ingestion", "failDocument", document.ID, nil, err)
	}
}

func (o *Orchestrator) enqueueEvent(ctx context.Context, tx *gorm.DB, document *models.Document, event string, metadata models.JSONMap) error {
	payload, err := json.Marshal(metadata)
	if err != nil {
		payload = nil
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	return models.EnqueueDocumentEvent(tx, &models.DocumentEventRecord{
		ClientId:      document.ClientId,
		DocumentId:    document.ID,
		DocumentType:  string(document.Type),
		Event:         event,
		OccurredAt:    time.Now(),
		Metadata:      payload,
		CorrelationId: correlationId,
	})
}

// ReprocessDocument resets a failed document to pending and runs a fresh
// ingestion pass. A redis lock keeps two reprocess requests for the same
// document from racing the duplicate resolver.
func (o *Orchestrator) ReprocessDocument(ctx context.Context, documentId string) (*ProcessResult, error) {
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "document:reprocess:"+documentId, time.Minute, nil)
		if err != nil {
			return nil, ErrReprocessLocked
		}
		defer lock.Release(ctx)
	}

	reset, err := models.ResetDocumentForReprocess(ctx, o.db, documentId)
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, ErrReprocessNotFailed
	}

	return o.ProcessDocument(ctx, documentId)
}
