package chunker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/swiftbyte/swiftbyte/internal/codec"
)

const (
	// DefaultThreshold is the sampled-ratio cutoff below which compression
	// is considered worthwhile.
	DefaultThreshold = 0.9
	// DefaultSampleBytes bounds how much of a file the advisor compresses
	// to estimate the ratio.
	DefaultSampleBytes = 1024 * 1024
)

// incompressibleExts covers formats that are already entropy-coded, where
// recompression burns CPU for nothing.
var incompressibleExts = map[string]bool{
	".zip": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true, ".rar": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".mp3": true, ".flac": true, ".aac": true,
	".apk": true, ".iso": true, ".pdf": true,
}

// Advisor estimates, per file, whether compression is likely to pay off.
// It is a hint only: a wrong verdict costs efficiency, never correctness.
type Advisor struct {
	Codec       codec.Codec
	Level       int
	Threshold   float64
	SampleBytes int64
}

func NewAdvisor(c codec.Codec) *Advisor {
	return &Advisor{
		Codec:       c,
		Level:       codec.DefaultLevel,
		Threshold:   DefaultThreshold,
		SampleBytes: DefaultSampleBytes,
	}
}

// ShouldCompress reports whether compressing the file at path is likely
// worthwhile, along with the estimated compression ratio. Files with a
// known-incompressible extension are refused immediately without sampling.
func (a *Advisor) ShouldCompress(path string) (bool, float64, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if incompressibleExts[ext] {
		return false, 1.0, nil
	}

	ratio, err := a.EstimateRatio(path)
	if err != nil {
		return false, 0, err
	}
	return ratio < a.threshold(), ratio, nil
}

// EstimateRatio compresses a bounded sample of the file and returns
// compressedSize/sampleSize. An empty file reports 1.0.
func (a *Advisor) EstimateRatio(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		return 1.0, nil
	}

	sample := a.SampleBytes
	if sample <= 0 {
		sample = DefaultSampleBytes
	}
	if info.Size() < sample {
		sample = info.Size()
	}

	buf := make([]byte, sample)
	if _, err := io.ReadFull(file, buf); err != nil {
		return 0, fmt.Errorf("failed to read sample: %w", err)
	}

	compressed, err := a.Codec.Compress(buf, a.Level)
	if err != nil {
		return 0, fmt.Errorf("failed to compress sample: %w", err)
	}

	return float64(len(compressed)) / float64(len(buf)), nil
}

func (a *Advisor) threshold() float64 {
	if a.Threshold <= 0 {
		return DefaultThreshold
	}
	return a.Threshold
}
