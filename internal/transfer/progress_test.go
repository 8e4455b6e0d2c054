package transfer

import (
	"strings"
	"testing"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	tr.Begin("t1", "data.bin", DirectionUpload, 4, 400)

	p, ok := tr.Get("t1")
	if !ok {
		t.Fatal("transfer not tracked after Begin")
	}
	if p.State != StateInit || p.TotalChunks != 4 || p.TotalBytes != 400 {
		t.Fatalf("unexpected initial snapshot: %+v", p)
	}

	for i := 0; i < 4; i++ {
		p, ok = tr.Advance("t1", 100)
		if !ok {
			t.Fatal("Advance lost the transfer")
		}
		if p.ChunksDone != i+1 {
			t.Fatalf("expected %d chunks done, got %d", i+1, p.ChunksDone)
		}
	}
	if p.BytesDone != 400 {
		t.Fatalf("expected 400 bytes done, got %d", p.BytesDone)
	}
	if p.Percent() != 100.0 {
		t.Fatalf("expected 100%%, got %.1f", p.Percent())
	}

	p, _ = tr.SetState("t1", StateFinalized)
	if p.State != StateFinalized {
		t.Fatalf("expected state finalized, got %s", p.State)
	}

	tr.Remove("t1")
	if _, ok := tr.Get("t1"); ok {
		t.Fatal("transfer still tracked after Remove")
	}
}

func TestTrackerUnknownTransfer(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Advance("nope", 1); ok {
		t.Fatal("Advance reported an unknown transfer as tracked")
	}
	if _, ok := tr.SetState("nope", StateDone); ok {
		t.Fatal("SetState reported an unknown transfer as tracked")
	}
}

func TestProgressDescribe(t *testing.T) {
	tr := NewTracker()
	tr.Begin("t2", "movie.mkv", DirectionDownload, 10, 10<<20)
	tr.Advance("t2", 1<<20)
	p, _ := tr.SetState("t2", StateFetching)

	line := p.Describe()
	for _, want := range []string{"download", "movie.mkv", "fetching", "1/10"} {
		if !strings.Contains(line, want) {
			t.Fatalf("Describe output %q missing %q", line, want)
		}
	}
}
