package chunker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/swiftbyte/swiftbyte/internal/codec"
)

func TestShouldCompressSkipsKnownExtensions(t *testing.T) {
	adv := NewAdvisor(codec.Default())
	// Content is highly compressible, but the extension wins.
	content := bytes.Repeat([]byte("a"), 100*1024)

	for _, name := range []string{"photo.jpg", "upper.JPG", "movie.mp4", "bundle.zip"} {
		path := writeTempFile(t, name, content)
		should, ratio, err := adv.ShouldCompress(path)
		if err != nil {
			t.Fatalf("ShouldCompress(%s) failed: %v", name, err)
		}
		if should {
			t.Errorf("ShouldCompress(%s) = true, want false", name)
		}
		if ratio != 1.0 {
			t.Errorf("ShouldCompress(%s) ratio = %v, want 1.0", name, ratio)
		}
	}
}

func TestShouldCompressRepetitiveText(t *testing.T) {
	adv := NewAdvisor(codec.Default())
	content := []byte(strings.Repeat("This is a test phrase. ", 100000))
	path := writeTempFile(t, "notes.txt", content)

	should, ratio, err := adv.ShouldCompress(path)
	if err != nil {
		t.Fatalf("ShouldCompress failed: %v", err)
	}
	if !should {
		t.Error("expected repetitive text to be worth compressing")
	}
	if ratio >= 0.5 {
		t.Errorf("expected ratio < 0.5 for repetitive text, got %v", ratio)
	}
}

func TestShouldCompressRandomData(t *testing.T) {
	adv := NewAdvisor(codec.Default())
	path := writeTempFile(t, "noise.bin", testBytes(t, 256*1024))

	should, ratio, err := adv.ShouldCompress(path)
	if err != nil {
		t.Fatalf("ShouldCompress failed: %v", err)
	}
	if should {
		t.Errorf("random data recommended for compression (ratio %v)", ratio)
	}
}

func TestShouldCompressEmptyFile(t *testing.T) {
	adv := NewAdvisor(codec.Default())
	path := writeTempFile(t, "empty.txt", nil)

	should, ratio, err := adv.ShouldCompress(path)
	if err != nil {
		t.Fatalf("ShouldCompress failed: %v", err)
	}
	if should {
		t.Error("empty file recommended for compression")
	}
	if ratio != 1.0 {
		t.Errorf("empty file ratio = %v, want 1.0", ratio)
	}
}

func TestEstimateRatioSamplesBoundedPrefix(t *testing.T) {
	// Compressible prefix, incompressible tail: a bounded sample must only
	// see the prefix and report a low ratio.
	prefix := bytes.Repeat([]byte("z"), 8*1024)
	tail := testBytes(t, 64*1024)
	path := writeTempFile(t, "mixed.dat", append(prefix, tail...))

	adv := NewAdvisor(codec.Default())
	adv.SampleBytes = int64(len(prefix))

	ratio, err := adv.EstimateRatio(path)
	if err != nil {
		t.Fatalf("EstimateRatio failed: %v", err)
	}
	if ratio >= 0.1 {
		t.Errorf("sample should cover only the compressible prefix, got ratio %v", ratio)
	}
}
