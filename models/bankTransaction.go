package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BankTransaction is one normalized OFX statement line. Amount is stored
// unsigned with Type carrying the sign. The natural key
// (client_id, account_id, transaction_id) is unique per tenant and backs
// the duplicate-skip behavior on re-ingestion.
type BankTransaction struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientId   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_bank_txn_natural_key" json:"client_id"`
	UserId     string `gorm:"type:varchar(36)" json:"user_id"`
	DocumentId string `gorm:"type:varchar(36);index;not null" json:"document_id"`

	AccountId     string          `gorm:"type:varchar(40);not null;uniqueIndex:idx_bank_txn_natural_key" json:"account_id"`
	TransactionId string          `gorm:"type:varchar(80);not null;uniqueIndex:idx_bank_txn_natural_key" json:"transaction_id"`
	FitId         string          `gorm:"type:varchar(80)" json:"fit_id"`
	AccountType   BankAccountType `gorm:"type:varchar(20)" json:"account_type"`
	BankCode      string          `gorm:"type:varchar(20)" json:"bank_code"`
	BranchCode    string          `gorm:"type:varchar(20)" json:"branch_code"`

	TransactionDate string               `gorm:"type:varchar(10);not null" json:"transaction_date"`
	PostDate        string               `gorm:"type:varchar(10)" json:"post_date"`
	Amount          decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"amount"`
	Type            TransactionDirection `gorm:"type:varchar(10);not null" json:"type"`
	Balance         decimal.NullDecimal  `gorm:"type:decimal(20,4)" json:"balance"`

	Description string `gorm:"type:varchar(500);not null" json:"description"`
	Memo        string `gorm:"type:varchar(500)" json:"memo"`
	Payee       string `gorm:"type:varchar(255)" json:"payee"`
	CheckNumber string `gorm:"type:varchar(20)" json:"check_number"`

	Reconciled   bool       `gorm:"default:false" json:"reconciled"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *BankTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// InsertIgnoreDuplicates inserts transactions one by one, letting the unique
// natural-key index arbitrate duplicates atomically instead of a
// check-then-act read. Returns (inserted, skipped) counts.
func InsertIgnoreDuplicates(ctx context.Context, db *gorm.DB, transactions []BankTransaction) (int, int, error) {
	inserted := 0
	skipped := 0
	for idx := range transactions {
		result := db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "client_id"},
					{Name: "account_id"},
					{Name: "transaction_id"},
				},
				DoNothing: true,
			}).
			Create(&transactions[idx])
		if result.Error != nil {
			return inserted, skipped, result.Error
		}
		if result.RowsAffected > 0 {
			inserted++
		} else {
			skipped++
		}
	}
	return inserted, skipped, nil
}
