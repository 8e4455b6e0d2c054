package metadata

import (
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func TestTransferLedgerCRUD(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	defer store.Close()

	rec := NewUploadRecord("sess-abc", "report.pdf", "docs/report.pdf", 12345, 12)
	rec.Compressed = true
	rec.Algorithm = "gzip"
	rec.DurationMS = 830

	if err := store.PutTransfer(rec); err != nil {
		t.Fatalf("failed to put transfer record: %v", err)
	}

	got, err := store.GetTransfer("sess-abc")
	if err != nil {
		t.Fatalf("failed to get transfer record: %v", err)
	}
	if got.Filename != rec.Filename || got.FileSize != rec.FileSize || got.Chunks != rec.Chunks {
		t.Errorf("retrieved record does not match: %+v", got)
	}
	if got.Direction != "upload" {
		t.Errorf("direction = %q, want upload", got.Direction)
	}
	if !got.Compressed || got.Algorithm != "gzip" {
		t.Errorf("compression fields lost: %+v", got)
	}

	if _, err := store.GetTransfer("nope"); !errors.Is(err, badger.ErrKeyNotFound) {
		t.Errorf("GetTransfer(nope) error = %v, want ErrKeyNotFound", err)
	}
}

func TestListTransfersNewestFirst(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	defer store.Close()

	for i, ts := range []int64{100, 300, 200} {
		rec := NewUploadRecord(string(rune('a'+i)), "f", "f", 10, 1)
		rec.CompletedAt = ts
		if err := store.PutTransfer(rec); err != nil {
			t.Fatalf("put record %d: %v", i, err)
		}
	}

	records, err := store.ListTransfers(0)
	if err != nil {
		t.Fatalf("ListTransfers failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].CompletedAt != 300 || records[1].CompletedAt != 200 || records[2].CompletedAt != 100 {
		t.Errorf("records not newest-first: %v", records)
	}

	limited, err := store.ListTransfers(2)
	if err != nil {
		t.Fatalf("ListTransfers(2) failed: %v", err)
	}
	if len(limited) != 2 || limited[0].CompletedAt != 300 {
		t.Errorf("limited listing wrong: %v", limited)
	}
}
