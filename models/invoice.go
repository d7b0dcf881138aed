package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/contabilhub/contabil_backend/utils"
)

// Invoice is one normalized fiscal document (NF-e and its variants).
// Header totals come straight from the XML totals block; they are never
// recomputed from the items.
type Invoice struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientId   string `gorm:"type:varchar(36);index;not null" json:"client_id"`
	UserId     string `gorm:"type:varchar(36)" json:"user_id"`
	DocumentId string `gorm:"type:varchar(36);index;not null" json:"document_id"`

	InvoiceNumber string `gorm:"type:varchar(20);not null" json:"invoice_number"`
	Series        string `gorm:"type:varchar(10)" json:"series"`
	XmlKey        string `gorm:"type:varchar(60);index" json:"xml_key"`

	Type   InvoiceDirection `gorm:"type:varchar(10);not null" json:"type"`
	Status string           `gorm:"type:varchar(20);default:'active'" json:"status"`

	IssueDate     string `gorm:"type:varchar(10);not null" json:"issue_date"`
	OperationDate string `gorm:"type:varchar(10)" json:"operation_date"`

	SupplierName  string `gorm:"type:varchar(255)" json:"supplier_name"`
	SupplierCnpj  string `gorm:"type:varchar(18)" json:"supplier_cnpj"`
	SupplierCpf   string `gorm:"type:varchar(14)" json:"supplier_cpf"`
	SupplierCity  string `gorm:"type:varchar(100)" json:"supplier_city"`
	SupplierState string `gorm:"type:varchar(2)" json:"supplier_state"`
	CustomerName  string `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerCnpj  string `gorm:"type:varchar(18)" json:"customer_cnpj"`
	CustomerCpf   string `gorm:"type:varchar(14)" json:"customer_cpf"`
	CustomerCity  string `gorm:"type:varchar(100)" json:"customer_city"`
	CustomerState string `gorm:"type:varchar(2)" json:"customer_state"`

	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_amount"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(20,4)" json:"discount_amount"`
	FreightAmount   decimal.Decimal `gorm:"type:decimal(20,4)" json:"freight_amount"`
	InsuranceAmount decimal.Decimal `gorm:"type:decimal(20,4)" json:"insurance_amount"`
	OtherExpenses   decimal.Decimal `gorm:"type:decimal(20,4)" json:"other_expenses"`
	NetAmount       decimal.Decimal `gorm:"type:decimal(20,4)" json:"net_amount"`

	IcmsBase      decimal.Decimal `gorm:"type:decimal(20,4)" json:"icms_base"`
	IcmsAmount    decimal.Decimal `gorm:"type:decimal(20,4)" json:"icms_amount"`
	IcmsStAmount  decimal.Decimal `gorm:"type:decimal(20,4)" json:"icms_st_amount"`
	IpiAmount     decimal.Decimal `gorm:"type:decimal(20,4)" json:"ipi_amount"`
	PisAmount     decimal.Decimal `gorm:"type:decimal(20,4)" json:"pis_amount"`
	CofinsAmount  decimal.Decimal `gorm:"type:decimal(20,4)" json:"cofins_amount"`
	IssAmount     decimal.Decimal `gorm:"type:decimal(20,4)" json:"iss_amount"`

	Cfop            string `gorm:"type:varchar(10)" json:"cfop"`
	OperationNature string `gorm:"type:varchar(255)" json:"operation_nature"`
	Notes           string `gorm:"type:text" json:"notes"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceId" json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// InvoiceItem is one <det> line of the source XML. Line amounts are stored
// as parsed and are independent of the header totals.
type InvoiceItem struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientId   string `gorm:"type:varchar(36);index;not null" json:"client_id"`
	InvoiceId  string `gorm:"type:varchar(36);index;not null" json:"invoice_id"`
	DocumentId string `gorm:"type:varchar(36);index" json:"document_id"`

	ItemNumber         int    `gorm:"not null" json:"item_number"`
	ProductCode        string `gorm:"type:varchar(60)" json:"product_code"`
	ProductDescription string `gorm:"type:varchar(500)" json:"product_description"`
	Ncm                string `gorm:"type:varchar(10)" json:"ncm"`
	Cest               string `gorm:"type:varchar(10)" json:"cest"`
	Cfop               string `gorm:"type:varchar(10)" json:"cfop"`
	Unit               string `gorm:"type:varchar(10)" json:"unit"`

	Quantity   decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_price"`
	Discount   decimal.Decimal `gorm:"type:decimal(20,4)" json:"discount"`

	IcmsBase     decimal.Decimal `gorm:"type:decimal(20,4)" json:"icms_base"`
	IcmsRate     decimal.Decimal `gorm:"type:decimal(20,4)" json:"icms_rate"`
	IcmsAmount   decimal.Decimal `gorm:"type:decimal(20,4)" json:"icms_amount"`
	IpiRate      decimal.Decimal `gorm:"type:decimal(20,4)" json:"ipi_rate"`
	IpiAmount    decimal.Decimal `gorm:"type:decimal(20,4)" json:"ipi_amount"`
	PisRate      decimal.Decimal `gorm:"type:decimal(20,4)" json:"pis_rate"`
	PisAmount    decimal.Decimal `gorm:"type:decimal(20,4)" json:"pis_amount"`
	CofinsRate   decimal.Decimal `gorm:"type:decimal(20,4)" json:"cofins_rate"`
	CofinsAmount decimal.Decimal `gorm:"type:decimal(20,4)" json:"cofins_amount"`

	CreatedAt time.Time `json:"created_at"`
}

func (i *InvoiceItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// CreateInvoiceWithItems persists the invoice header and its items in one
// transaction, stamping tenant and document ownership onto every item row.
func CreateInvoiceWithItems(ctx context.Context, db *gorm.DB, invoice *Invoice, items []InvoiceItem) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(invoice).Error; err != nil {
			return err
		}
		for idx := range items {
			items[idx].InvoiceId = invoice.ID
			items[idx].ClientId = invoice.ClientId
			items[idx].DocumentId = invoice.DocumentId
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func GetInvoiceById(ctx context.Context, db *gorm.DB, invoiceId string) (*Invoice, error) {
	var invoice Invoice
	err := db.WithContext(ctx).Preload("Items").Where("id = ?", invoiceId).First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &invoice, nil
}
