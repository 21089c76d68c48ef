package events

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestOutbox(t *testing.T) (*Outbox, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE ledger_events (
			id INTEGER PRIMARY KEY,
			org_id INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			dedupe_key TEXT,
			published BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX idx_ledger_events_dedupe ON ledger_events (org_id, dedupe_key)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	genID, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return NewOutbox(db, genID), db, genID
}

func countEvents(t *testing.T, db *gorm.DB, orgID snowflake.ID) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM ledger_events WHERE org_id = ?`, orgID).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return count
}

func TestPublishStoresEvent(t *testing.T) {
	outbox, db, genID := newTestOutbox(t)
	orgID := genID.Generate()

	err := outbox.Publish(context.Background(), Event{
		OrgID:     orgID,
		Type:      TypeInvoicePosted,
		Payload:   map[string]any{"invoice_id": "42", "total": 120000},
		DedupeKey: "invoice_posted:42",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := countEvents(t, db, orgID); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
}

func TestPublishDeduplicates(t *testing.T) {
	outbox, db, genID := newTestOutbox(t)
	orgID := genID.Generate()

	event := Event{
		OrgID:     orgID,
		Type:      TypePaymentPosted,
		DedupeKey: "payment_posted:PAY-1",
	}
	if err := outbox.Publish(context.Background(), event); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := outbox.Publish(context.Background(), event); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if got := countEvents(t, db, orgID); got != 1 {
		t.Fatalf("events = %d, want 1 after dedupe", got)
	}
}

func TestPublishValidation(t *testing.T) {
	outbox, _, genID := newTestOutbox(t)

	if err := outbox.Publish(context.Background(), Event{Type: TypeInvoicePosted}); err == nil {
		t.Fatal("expected error for missing org")
	}
	if err := outbox.Publish(context.Background(), Event{OrgID: genID.Generate()}); err == nil {
		t.Fatal("expected error for missing event type")
	}
	if err := outbox.PublishTx(context.Background(), nil, Event{OrgID: genID.Generate(), Type: TypeInvoicePosted}); err == nil {
		t.Fatal("expected error for nil transaction")
	}
}
