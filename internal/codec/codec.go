package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrDecode reports input that is not a valid encoded stream. Decompress
// never returns partial output alongside it.
var ErrDecode = errors.New("corrupt compressed data")

var ErrUnknownAlgorithm = errors.New("unknown compression algorithm")

// DefaultLevel balances speed against ratio for chunk-sized payloads.
const DefaultLevel = 6

// Codec compresses and decompresses a single self-contained byte block.
// Chunks are encoded independently of each other, so blocks produced by a
// Codec can be decoded in any order.
type Codec interface {
	Name() string
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var codecs = map[string]Codec{
	"gzip": gzipCodec{},
	"lz4":  lz4Codec{},
	"zstd": zstdCodec{},
}

// Default returns the codec used when no algorithm is negotiated.
func Default() Codec {
	return codecs["gzip"]
}

func ByName(name string) (Codec, error) {
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return c, nil
}

func Names() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) Compress(data []byte, level int) ([]byte, error) {
	if level <= 0 {
		level = DefaultLevel
	}
	if level > gzip.BestCompression {
		level = gzip.BestCompression
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip flush: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }

// Compress ignores the level: lz4 trades ratio for speed and the frame
// writer's default is the fast path.
func (lz4Codec) Compress(data []byte, _ int) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 flush: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Compress(data []byte, level int) ([]byte, error) {
	opt := zstd.WithEncoderLevel(zstd.SpeedDefault)
	if level > 0 {
		opt = zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level))
	}

	enc, err := zstd.NewWriter(nil, opt)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	out := enc.EncodeAll(data, nil)
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd flush: %w", err)
	}
	return out, nil
}

func (zstdCodec) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}
