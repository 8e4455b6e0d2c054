package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/docker/go-units"
)

// TransferState tracks where a transfer is in its lifecycle.
type TransferState string

const (
	StateInit         TransferState = "init"
	StateSending      TransferState = "sending"
	StateAllSent      TransferState = "all_sent"
	StateFinalized    TransferState = "finalized"
	StateFetching     TransferState = "fetching"
	StateReassembling TransferState = "reassembling"
	StateDone         TransferState = "done"
	StateFailed       TransferState = "failed"
	StateCancelled    TransferState = "cancelled"
)

const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Progress is a point-in-time snapshot of one transfer. Callers get copies,
// never the live entry, so they can read fields without holding a lock.
type Progress struct {
	TransferID  string
	Filename    string
	Direction   string
	State       TransferState
	ChunksDone  int
	TotalChunks int
	BytesDone   int64
	TotalBytes  int64
	StartedAt   time.Time
	UpdatedAt   time.Time
	Speed       float64 // bytes per second
	ETA         time.Duration
}

// Percent reports chunk completion in the range [0, 100].
func (p Progress) Percent() float64 {
	if p.TotalChunks <= 0 {
		return 0
	}
	return float64(p.ChunksDone) / float64(p.TotalChunks) * 100.0
}

// Describe renders a one-line human summary of the snapshot.
func (p Progress) Describe() string {
	line := fmt.Sprintf("%s %s [%s]: %d/%d chunks (%.1f%%), %s/%s",
		p.Direction, p.Filename, p.State,
		p.ChunksDone, p.TotalChunks, p.Percent(),
		units.BytesSize(float64(p.BytesDone)), units.BytesSize(float64(p.TotalBytes)))

	if p.Speed > 0 {
		line += fmt.Sprintf(" at %s/s", units.BytesSize(p.Speed))
	}
	if p.ETA > 0 {
		line += fmt.Sprintf(", %s left", units.HumanDuration(p.ETA))
	}
	return line
}

// Tracker keeps live progress entries for in-flight transfers.
type Tracker struct {
	mu        sync.RWMutex
	transfers map[string]*progressEntry
}

type progressEntry struct {
	mu       sync.Mutex
	snapshot Progress
}

func NewTracker() *Tracker {
	return &Tracker{
		transfers: make(map[string]*progressEntry),
	}
}

// Begin registers a new transfer in StateInit.
func (t *Tracker) Begin(transferID, filename, direction string, totalChunks int, totalBytes int64) Progress {
	now := time.Now()
	entry := &progressEntry{
		snapshot: Progress{
			TransferID:  transferID,
			Filename:    filename,
			Direction:   direction,
			State:       StateInit,
			TotalChunks: totalChunks,
			TotalBytes:  totalBytes,
			StartedAt:   now,
			UpdatedAt:   now,
		},
	}

	t.mu.Lock()
	t.transfers[transferID] = entry
	t.mu.Unlock()

	return entry.snapshot
}

// Advance records one finished chunk. The chunk counter only moves forward;
// concurrent workers may land in any order but the count stays monotonic.
func (t *Tracker) Advance(transferID string, chunkBytes int64) (Progress, bool) {
	entry, ok := t.get(transferID)
	if !ok {
		return Progress{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	p := &entry.snapshot
	p.ChunksDone++
	p.BytesDone += chunkBytes
	p.UpdatedAt = now

	if elapsed := now.Sub(p.StartedAt).Seconds(); elapsed > 0 {
		p.Speed = float64(p.BytesDone) / elapsed
	}
	if p.Speed > 0 && p.TotalBytes > p.BytesDone {
		remaining := p.TotalBytes - p.BytesDone
		p.ETA = time.Duration(float64(remaining)/p.Speed) * time.Second
	} else {
		p.ETA = 0
	}

	return *p, true
}

// SetState moves a transfer to a new lifecycle state.
func (t *Tracker) SetState(transferID string, state TransferState) (Progress, bool) {
	entry, ok := t.get(transferID)
	if !ok {
		return Progress{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.snapshot.State = state
	entry.snapshot.UpdatedAt = time.Now()
	return entry.snapshot, true
}

// Get returns the current snapshot of a transfer.
func (t *Tracker) Get(transferID string) (Progress, bool) {
	entry, ok := t.get(transferID)
	if !ok {
		return Progress{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.snapshot, true
}

// All returns snapshots of every tracked transfer.
func (t *Tracker) All() []Progress {
	t.mu.RLock()
	entries := make([]*progressEntry, 0, len(t.transfers))
	for _, entry := range t.transfers {
		entries = append(entries, entry)
	}
	t.mu.RUnlock()

	out := make([]Progress, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		out = append(out, entry.snapshot)
		entry.mu.Unlock()
	}
	return out
}

// Remove drops a finished transfer from tracking.
func (t *Tracker) Remove(transferID string) {
	t.mu.Lock()
	delete(t.transfers, transferID)
	t.mu.Unlock()
}

func (t *Tracker) get(transferID string) (*progressEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.transfers[transferID]
	return entry, ok
}
