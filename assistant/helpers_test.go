package assistant

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

const (
	testClientId = "11111111-1111-1111-1111-111111111111"
	testUserId   = "22222222-2222-2222-2222-222222222222"
	otherClient  = "33333333-3333-3333-3333-333333333333"
)

func newTestDB(t *testing.T) *gorm.DB {
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
		&models.Client{}, &models.User{}, &models.Membership{},
		&models.Document{},
		&models.Invoice{}, &models.InvoiceItem{},
		&models.BankTransaction{},
		&models.PayrollSummary{}, &models.PayrollEntry{},
		&models.AiMetric{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testContext() context.Context {
	ctx := utils.SetClientIdInContext(context.Background(), testClientId)
	return utils.SetUserIdInContext(ctx, testUserId)
}

func grantMembership(t *testing.T, db *gorm.DB, userId string, clientId string) {
	t.Helper()
	membership := models.Membership{
		UserId:   userId,
		ClientId: clientId,
		Role:     models.UserRoleViewer,
		IsActive: true,
	}
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	if err := db.WithContext(ctx).Create(&membership).Error; err != nil {
		t.Fatalf("grant membership: %v", err)
	}
}

func seedInvoice(t *testing.T, db *gorm.DB, clientId string, direction models.InvoiceDirection, issueDate string, total string) models.Invoice {
	t.Helper()
	invoice := models.Invoice{
		ID:            uuid.NewString(),
		ClientId:      clientId,
		DocumentId:    uuid.NewString(),
		InvoiceNumber: fmt.Sprintf("%d", len(issueDate)+1000),
		Type:          direction,
		IssueDate:     issueDate,
		TotalAmount:   decimal.RequireFromString(total),
		NetAmount:     decimal.RequireFromString(total),
	}
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return invoice
}

func seedTransaction(t *testing.T, db *gorm.DB, clientId string, direction models.TransactionDirection, date string, amount string) models.BankTransaction {
	t.Helper()
	transaction := models.BankTransaction{
		ID:              uuid.NewString(),
		ClientId:        clientId,
		DocumentId:      uuid.NewString(),
		AccountId:       "123-4",
		TransactionId:   uuid.NewString(),
		TransactionDate: date,
		Amount:          decimal.RequireFromString(amount),
		Type:            direction,
		Description:     "Movimentação",
	}
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	if err := db.WithContext(ctx).Create(&transaction).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return transaction
}

func seedPayroll(t *testing.T, db *gorm.DB, clientId string, month int, year int, gross string, net string) models.PayrollSummary {
	t.Helper()
	summary := models.PayrollSummary{
		ID:                uuid.NewString(),
		ClientId:          clientId,
		DocumentId:        uuid.NewString(),
		ReferenceMonth:    month,
		ReferenceYear:     year,
		TotalEmployees:    5,
		TotalGrossSalary:  decimal.RequireFromString(gross),
		TotalNetSalary:    decimal.RequireFromString(net),
		TotalInssEmployer: decimal.RequireFromString(gross).Mul(decimal.RequireFromString("0.2")),
		TotalFgts:         decimal.RequireFromString(gross).Mul(decimal.RequireFromString("0.08")),
	}
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
	if err := db.WithContext(ctx).Create(&summary).Error; err != nil {
		t.Fatalf("seed payroll: %v", err)
	}
	return summary
}
