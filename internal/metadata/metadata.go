package metadata

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const transferPrefix = "transfer:"

// TransferRecord describes one completed transfer. Records are written when
// an upload finalizes and power the history listing.
type TransferRecord struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	FileSize    int64  `json:"file_size"`
	Chunks      int    `json:"chunks"`
	Compressed  bool   `json:"compressed"`
	Algorithm   string `json:"algorithm,omitempty"`
	Encrypted   bool   `json:"encrypted"`
	CompletedAt int64  `json:"completed_at"`
	DurationMS  int64  `json:"duration_ms"`
}

// NewUploadRecord builds the ledger entry for a finalized upload.
func NewUploadRecord(id, filename, path string, fileSize int64, chunks int) TransferRecord {
	return TransferRecord{
		ID:          id,
		Direction:   "upload",
		Filename:    filename,
		Path:        path,
		FileSize:    fileSize,
		Chunks:      chunks,
		CompletedAt: time.Now().Unix(),
	}
}

// Store wraps BadgerDB for the transfer ledger.
type Store struct {
	db *badger.DB
}

// OpenStore opens (or creates) a BadgerDB at the given path.
func OpenStore(dbPath string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %v", err)
	}
	return &Store{db: db}, nil
}

// Close closes the BadgerDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutTransfer stores a transfer record.
func (s *Store) PutTransfer(rec TransferRecord) error {
	key := []byte(transferPrefix + rec.ID)
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// GetTransfer retrieves a transfer record by id.
func (s *Store) GetTransfer(id string) (TransferRecord, error) {
	key := []byte(transferPrefix + id)
	var rec TransferRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// ListTransfers returns up to limit records, newest first. A limit of zero
// or less returns everything.
func (s *Store) ListTransfers(limit int) ([]TransferRecord, error) {
	var records []TransferRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(transferPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec TransferRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt > records[j].CompletedAt
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
