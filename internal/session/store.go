package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/swiftbyte/swiftbyte/pkg/logging"
)

var (
	ErrNotFound = errors.New("unknown upload session")
	ErrExists   = errors.New("session id already registered")
	// ErrChunkRange reports a chunk id outside [0, totalChunks).
	ErrChunkRange = errors.New("chunk id outside session range")
)

// IncompleteError reports a finalize attempt before every chunk arrived.
// Missing lists the absent chunk ids in ascending order so the caller can
// push only the gaps and finalize again.
type IncompleteError struct {
	Missing []int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("upload incomplete: %d chunks missing", len(e.Missing))
}

// Params describes a new upload session.
type Params struct {
	Filename    string
	TotalChunks int
	// DestDir is the destination directory recorded at init, relative to the
	// served root. A finalize request may name a different one.
	DestDir    string
	Compressed bool
	Algorithm  string
	Encrypted  bool
	// Passphrase is held in memory for the session's lifetime and is never
	// logged or included in snapshots.
	Passphrase string
}

// session is the live accumulator for one in-progress upload. Handlers
// never see it directly; all reads go through copy-on-read Status
// snapshots taken under the store lock.
type session struct {
	id          string
	params      Params
	chunks      map[int][]byte
	createdAt   time.Time
	lastUpdated time.Time
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID          string
	Filename    string
	TotalChunks int
	DestDir     string
	Received    int
	Missing     []int
	IsComplete  bool
	Compressed  bool
	Algorithm   string
	Encrypted   bool
	CreatedAt   time.Time
	LastUpdated time.Time
}

func (sess *session) snapshotLocked() Status {
	missing := sess.missingLocked()
	return Status{
		ID:          sess.id,
		Filename:    sess.params.Filename,
		TotalChunks: sess.params.TotalChunks,
		DestDir:     sess.params.DestDir,
		Received:    len(sess.chunks),
		Missing:     missing,
		IsComplete:  len(missing) == 0,
		Compressed:  sess.params.Compressed,
		Algorithm:   sess.params.Algorithm,
		Encrypted:   sess.params.Encrypted,
		CreatedAt:   sess.createdAt,
		LastUpdated: sess.lastUpdated,
	}
}

func (sess *session) missingLocked() []int {
	missing := make([]int, 0)
	for i := 0; i < sess.params.TotalChunks; i++ {
		if _, ok := sess.chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing
}

// Store is the in-memory registry of in-progress uploads. It is
// constructed once at process start and passed by reference into every
// handler. One coarse mutex guards the table; critical sections are map
// and scan operations only, reassembly I/O runs outside the lock. Sessions
// do not survive a process restart.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	timeout  time.Duration

	// now is swapped out by tests to drive expiry deterministically.
	now func() time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
}

func NewStore(timeout time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Create registers a new session under id. The id must be fresh.
func (s *Store) Create(id string, p Params) (Status, error) {
	if p.TotalChunks <= 0 {
		return Status{}, fmt.Errorf("total chunks must be positive, got %d", p.TotalChunks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return Status{}, fmt.Errorf("%w: %s", ErrExists, id)
	}

	now := s.now()
	sess := &session{
		id:          id,
		params:      p,
		chunks:      make(map[int][]byte),
		createdAt:   now,
		lastUpdated: now,
	}
	s.sessions[id] = sess

	logging.Log.WithFields(map[string]interface{}{
		"session_id":   id,
		"filename":     p.Filename,
		"total_chunks": p.TotalChunks,
		"compressed":   p.Compressed,
		"encrypted":    p.Encrypted,
	}).Debug("Upload session created")

	return sess.snapshotLocked(), nil
}

func (s *Store) Get(id string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess.snapshotLocked(), nil
}

// AddChunk stores the bytes of one chunk. A duplicate chunk id replaces the
// previous bytes (last-write-wins), which keeps retried pushes idempotent.
func (s *Store) AddChunk(id string, chunkID int, data []byte) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if chunkID < 0 || chunkID >= sess.params.TotalChunks {
		return Status{}, fmt.Errorf("%w: chunk %d of %d", ErrChunkRange, chunkID, sess.params.TotalChunks)
	}

	sess.chunks[chunkID] = data
	sess.lastUpdated = s.now()

	return sess.snapshotLocked(), nil
}

// Remove deletes a session outright. Used by explicit cancel.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)

	logging.Log.WithField("session_id", id).Debug("Upload session removed")
	return true
}

// ExpireSweep removes every session idle for longer than the store timeout
// and returns how many were dropped.
func (s *Store) ExpireSweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUpdated) > s.timeout {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartSweeper launches the periodic expiry sweep. It is bound to the
// process lifetime: call StopSweeper during shutdown.
func (s *Store) StartSweeper(interval time.Duration) {
	if interval <= 0 || s.sweepStop != nil {
		return
	}
	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})

	go func() {
		defer close(s.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed := s.ExpireSweep(s.now()); removed > 0 {
					logging.Log.WithField("removed", removed).Info("Expired upload sessions swept")
				}
			case <-s.sweepStop:
				return
			}
		}
	}()
}

// StopSweeper halts the sweep goroutine and waits for it to exit.
func (s *Store) StopSweeper() {
	if s.sweepStop == nil {
		return
	}
	close(s.sweepStop)
	<-s.sweepDone
	s.sweepStop = nil
	s.sweepDone = nil
}
