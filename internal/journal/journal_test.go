package journal

import (
	"testing"
	"time"

	"github.com/dokzlo13/telemetryd/internal/db"
	"github.com/dokzlo13/telemetryd/internal/event"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestRecordForwarded_AndQuery(t *testing.T) {
	database := openTestDB(t)
	j := New(database.DB)

	j.RecordForwarded("p1", event.Event{
		ID:    "ev-1",
		Kind:  event.KindDesign,
		Name:  "Kills",
		Value: 5,
		At:    time.Now(),
	})
	j.RecordForwarded("p2", event.Event{
		ID:    "ev-2",
		Kind:  event.KindBusiness,
		Name:  "purchase",
		Value: 4.99,
		At:    time.Now(),
	})

	entries, err := j.BySession("p1", 10)
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry for p1, got %d", len(entries))
	}
	if entries[0].Name != "Kills" || entries[0].Value != 5 {
		t.Errorf("unexpected entry: %+v", entries[0])
	}

	all, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 entries, got %d", len(all))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	database := openTestDB(t)
	j := New(database.DB)

	j.RecordForwarded("p1", event.Event{
		ID:    "ev-old",
		Kind:  event.KindDesign,
		Name:  "Old",
		Value: 1,
		At:    time.Now().Add(-48 * time.Hour),
	})
	j.RecordForwarded("p1", event.Event{
		ID:    "ev-new",
		Kind:  event.KindDesign,
		Name:  "New",
		Value: 1,
		At:    time.Now(),
	})

	deleted, err := j.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	entries, _ := j.Recent(10)
	if len(entries) != 1 || entries[0].Name != "New" {
		t.Errorf("unexpected survivors: %v", entries)
	}
}
