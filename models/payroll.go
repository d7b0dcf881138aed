package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayrollSummary aggregates one payroll run for a (client, month, year).
// Month 13 is the annual 13th-salary payment. Totals are rounded to 2
// decimal places; per-entry values keep raw parsed precision.
type PayrollSummary struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientId   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_payroll_ref" json:"client_id"`
	UserId     string `gorm:"type:varchar(36)" json:"user_id"`
	DocumentId string `gorm:"type:varchar(36);index" json:"document_id"`

	ReferenceMonth int `gorm:"not null;uniqueIndex:idx_payroll_ref" json:"reference_month"`
	ReferenceYear  int `gorm:"not null;uniqueIndex:idx_payroll_ref" json:"reference_year"`

	TotalEmployees      int             `gorm:"not null" json:"total_employees"`
	TotalGrossSalary    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_gross_salary"`
	TotalNetSalary      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_net_salary"`
	TotalInssEmployee   decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_inss_employee"`
	TotalInssEmployer   decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_inss_employer"`
	TotalFgts           decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_fgts"`
	TotalIrrf           decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_irrf"`
	TotalOtherDiscounts decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_other_discounts"`

	InssEmployerEnabled bool `gorm:"default:true" json:"inss_employer_enabled"`
	FgtsEnabled         bool `gorm:"default:true" json:"fgts_enabled"`

	Entries []PayrollEntry `gorm:"foreignKey:PayrollSummaryId" json:"entries,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PayrollSummary) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type PayrollEntry struct {
	ID               string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientId         string `gorm:"type:varchar(36);index;not null" json:"client_id"`
	UserId           string `gorm:"type:varchar(36)" json:"user_id"`
	PayrollSummaryId string `gorm:"type:varchar(36);index;not null" json:"payroll_summary_id"`
	DocumentId       string `gorm:"type:varchar(36);index" json:"document_id"`

	EmployeeCode string `gorm:"type:varchar(40)" json:"employee_code"`
	EmployeeName string `gorm:"type:varchar(255)" json:"employee_name"`

	GrossSalary    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"gross_salary"`
	InssEmployee   decimal.Decimal `gorm:"type:decimal(20,4)" json:"inss_employee"`
	InssEmployer   decimal.Decimal `gorm:"type:decimal(20,4)" json:"inss_employer"`
	Fgts           decimal.Decimal `gorm:"type:decimal(20,4)" json:"fgts"`
	Irrf           decimal.Decimal `gorm:"type:decimal(20,4)" json:"irrf"`
	OtherDiscounts decimal.Decimal `gorm:"type:decimal(20,4)" json:"other_discounts"`
	NetSalary      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"net_salary"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PayrollEntry) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ValidatePayrollReference enforces the reference window before any parsing
// starts. Month 13 is valid (13th salary).
func ValidatePayrollReference(month int, year int) error {
	if month < 1 || month > 13 {
		return fmt.Errorf("invalid reference month %d: must be between 1 and 13", month)
	}
	if year < 2020 || year > 2030 {
		return fmt.Errorf("invalid reference year %d: must be between 2020 and 2030", year)
	}
	return nil
}

// CreatePayrollSummaryWithEntries persists the summary and its entries in
// one transaction, stamping ownership onto every entry row.
func CreatePayrollSummaryWithEntries(ctx context.Context, db *gorm.DB, summary *PayrollSummary, entries []PayrollEntry) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(summary).Error; err != nil {
			return err
		}
		for idx := range entries {
			entries[idx].PayrollSummaryId = summary.ID
			entries[idx].ClientId = summary.ClientId
			entries[idx].UserId = summary.UserId
			entries[idx].DocumentId = summary.DocumentId
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func ListPayrollSummaries(ctx context.Context, db *gorm.DB, month int, year int, limit int) ([]PayrollSummary, error) {
	query := db.WithContext(ctx).Model(&PayrollSummary{})
	if month > 0 {
		query = query.Where("reference_month = ?", month)
	}
	if year > 0 {
		query = query.Where("reference_year = ?", year)
	}
	var summaries []PayrollSummary
	err := query.Order("reference_year DESC, reference_month DESC").Limit(limit).Find(&summaries).Error
	return summaries, err
}
