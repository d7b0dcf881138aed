package models

import (
	"log"

	"github.com/contabilhub/contabil_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Client{}, &User{}, &Membership{},
		&Document{},
		&Invoice{}, &InvoiceItem{},
		&BankTransaction{},
		&PayrollSummary{}, &PayrollEntry{},
		&AiMetric{},
		&DocumentEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
