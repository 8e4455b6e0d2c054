package chunker

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrOutOfRange reports a chunk id outside [0, TotalChunks).
var ErrOutOfRange = errors.New("chunk id out of range")

// TotalChunks returns how many chunks a file of fileSize bytes splits into
// at the given chunk size. An empty file has zero chunks.
func TotalChunks(fileSize, chunkSize int64) int {
	if fileSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((fileSize + chunkSize - 1) / chunkSize)
}

// ChunkOffset returns the byte offset of a chunk in the uncompressed file.
func ChunkOffset(chunkID int, chunkSize int64) int64 {
	return int64(chunkID) * chunkSize
}

// ReadChunk returns the bytes of one chunk of the file at path. Boundaries
// are always defined over the uncompressed file; compression and sealing
// happen per chunk after slicing, never across the whole file, so every
// chunk is self-contained and may be transferred in any order. The final
// chunk may be shorter than chunkSize.
func ReadChunk(path string, chunkID int, chunkSize int64) ([]byte, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	total := TotalChunks(info.Size(), chunkSize)
	if chunkID < 0 || chunkID >= total {
		return nil, fmt.Errorf("%w: chunk %d, file has %d", ErrOutOfRange, chunkID, total)
	}

	offset := ChunkOffset(chunkID, chunkSize)
	size := chunkSize
	if remaining := info.Size() - offset; remaining < size {
		size = remaining
	}

	buf := make([]byte, size)
	n, err := file.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, fmt.Errorf("failed to read chunk %d: %w", chunkID, err)
	}
	return buf, nil
}

// RecommendChunkSize picks a chunk size by file size tier, keeping the
// request count reasonable for small files and the per-request payload
// bounded for large ones.
func RecommendChunkSize(fileSize int64) int64 {
	switch {
	case fileSize <= 1*1024*1024:
		return 256 * 1024
	case fileSize <= 10*1024*1024:
		return 512 * 1024
	case fileSize <= 100*1024*1024:
		return 1 * 1024 * 1024
	case fileSize <= 1024*1024*1024:
		return 4 * 1024 * 1024
	default:
		return 8 * 1024 * 1024
	}
}
