// outbox-revive puts DEAD outbox rows back in front of the dispatcher after
// the underlying publish problem is fixed. Attempt counters are reset so the
// rows get a full retry budget again.
//
// Usage:
//   go run ./cmd/outbox-revive -client <client-id> [-id <record-id>] [-dry-run]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
)

func main() {
	clientId := flag.String("client", "", "client id whose DEAD events to revive (required)")
	recordId := flag.Int("id", 0, "single outbox record id (optional; default all DEAD rows of the client)")
	dryRun := flag.Bool("dry-run", false, "list matching rows without updating them")
	flag.Parse()

	if *clientId == "" {
		flag.Usage()
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	query := db.Model(&models.DocumentEventRecord{}).
		Where("client_id = ? AND publish_status = ?", *clientId, models.OutboxPublishStatusDead)
	if *recordId > 0 {
		query = query.Where("id = ?", *recordId)
	}

	if *dryRun {
		var records []models.DocumentEventRecord
		if err := query.Order("id ASC").Find(&records).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list DEAD rows: %v\n", err)
			os.Exit(1)
		}
		for _, record := range records {
			lastErr := ""
			if record.LastPublishError != nil {
				lastErr = *record.LastPublishError
			}
			fmt.Printf("id=%d document_id=%s event=%s attempts=%d last_error=%q\n",
				record.ID, record.DocumentId, record.Event, record.PublishAttempts, lastErr)
		}
		fmt.Printf("%d DEAD row(s) would be revived\n", len(records))
		return
	}

	result := query.Updates(map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusPending,
		"publish_attempts":   0,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
		"last_publish_error": nil,
	})
	if result.Error != nil {
		fmt.Fprintf(os.Stderr, "failed to revive DEAD rows: %v\n", result.Error)
		os.Exit(1)
	}
	fmt.Printf("%d DEAD row(s) revived to PENDING\n", result.RowsAffected)
}
