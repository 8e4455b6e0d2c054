package chunker

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestTotalChunks(t *testing.T) {
	cases := []struct {
		name      string
		fileSize  int64
		chunkSize int64
		want      int
	}{
		{"exact multiple", 10 * 1024 * 1024, 1024 * 1024, 10},
		{"remainder adds a chunk", 10*1024*1024 + 1, 1024 * 1024, 11},
		{"smaller than one chunk", 100, 1024, 1},
		{"single byte", 1, 1024 * 1024, 1},
		{"empty file", 0, 1024 * 1024, 0},
		{"zero chunk size", 1024, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TotalChunks(tc.fileSize, tc.chunkSize); got != tc.want {
				t.Errorf("TotalChunks(%d, %d) = %d, want %d", tc.fileSize, tc.chunkSize, got, tc.want)
			}
		})
	}
}

func TestReadChunkConcatenationReproducesFile(t *testing.T) {
	const chunkSize = 40 * 1024
	content := testBytes(t, 2*chunkSize+chunkSize/2)
	path := writeTempFile(t, "source.bin", content)

	total := TotalChunks(int64(len(content)), chunkSize)
	if total != 3 {
		t.Fatalf("expected 3 chunks, got %d", total)
	}

	var rebuilt []byte
	for i := 0; i < total; i++ {
		chunk, err := ReadChunk(path, i, chunkSize)
		if err != nil {
			t.Fatalf("ReadChunk(%d) failed: %v", i, err)
		}
		if want := ChunkOffset(i, chunkSize); int64(len(rebuilt)) != want {
			t.Errorf("chunk %d starts at offset %d, want %d", i, len(rebuilt), want)
		}
		rebuilt = append(rebuilt, chunk...)
	}

	if !bytes.Equal(rebuilt, content) {
		t.Error("concatenated chunks do not reproduce the file")
	}
}

func TestReadChunkFinalChunkIsShort(t *testing.T) {
	const chunkSize = 1024
	content := testBytes(t, 2*chunkSize+100)
	path := writeTempFile(t, "short-tail.bin", content)

	chunk, err := ReadChunk(path, 2, chunkSize)
	if err != nil {
		t.Fatalf("ReadChunk failed: %v", err)
	}
	if len(chunk) != 100 {
		t.Errorf("final chunk has %d bytes, want 100", len(chunk))
	}
}

func TestReadChunkOutOfRange(t *testing.T) {
	const chunkSize = 1024
	path := writeTempFile(t, "small.bin", testBytes(t, 3*chunkSize))

	for _, id := range []int{3, 4, -1} {
		if _, err := ReadChunk(path, id, chunkSize); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("ReadChunk(%d) error = %v, want ErrOutOfRange", id, err)
		}
	}
}

func TestReadChunkMissingFile(t *testing.T) {
	if _, err := ReadChunk(filepath.Join(t.TempDir(), "nope.bin"), 0, 1024); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestRecommendChunkSize(t *testing.T) {
	cases := []struct {
		fileSize int64
		want     int64
	}{
		{512 * 1024, 256 * 1024},
		{5 * 1024 * 1024, 512 * 1024},
		{50 * 1024 * 1024, 1024 * 1024},
		{500 * 1024 * 1024, 4 * 1024 * 1024},
		{5 * 1024 * 1024 * 1024, 8 * 1024 * 1024},
	}

	for _, tc := range cases {
		if got := RecommendChunkSize(tc.fileSize); got != tc.want {
			t.Errorf("RecommendChunkSize(%d) = %d, want %d", tc.fileSize, got, tc.want)
		}
	}
}

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func testBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	rng := rand.New(rand.NewSource(7))
	if _, err := rng.Read(buf); err != nil {
		t.Fatalf("rand read: %v", err)
	}
	return buf
}
