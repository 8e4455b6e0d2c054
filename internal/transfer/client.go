package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"

	"github.com/swiftbyte/swiftbyte/internal/chunker"
	"github.com/swiftbyte/swiftbyte/internal/codec"
	"github.com/swiftbyte/swiftbyte/internal/encryptor"
	"github.com/swiftbyte/swiftbyte/internal/metadata"
	"github.com/swiftbyte/swiftbyte/pkg/logging"
)

const (
	defaultChunkSize   = 1 << 20
	defaultParallelism = 4
	requestTimeout     = 30 * time.Second
)

// Options tunes a single upload or download call. The zero value picks
// sensible defaults; Compress left nil lets the advisor decide per file.
type Options struct {
	ChunkSize   int64
	Parallelism int
	Algorithm   string
	Level       int
	Compress    *bool
	// Passphrase, when set, seals every chunk before it leaves the machine.
	Passphrase string
	// Simple streams the whole file in one request instead of chunking.
	Simple     bool
	OnProgress func(Progress)
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = defaultParallelism
	}
	if o.Algorithm == "" {
		o.Algorithm = codec.Default().Name()
	}
	if o.Level <= 0 {
		o.Level = codec.DefaultLevel
	}
	return o
}

// APIError is a non-2xx reply decoded back into the response taxonomy.
type APIError struct {
	StatusCode int
	Category   string
	Message    string
	Missing    []int
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d)", e.Category, e.StatusCode)
}

// Client talks to a transfer server. Chunk pushes go through a plain HTTP
// client so a failed POST surfaces immediately instead of being retried
// behind the caller's back; idempotent GETs ride a retrying client.
type Client struct {
	baseURL string
	http    *http.Client
	retry   *retryablehttp.Client
	tracker *Tracker
}

func NewClient(baseURL string) *Client {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.Logger = nil
	retry.HTTPClient.Timeout = requestTimeout

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: requestTimeout,
		},
		retry:   retry,
		tracker: NewTracker(),
	}
}

// Tracker exposes live progress for everything this client has in flight.
func (c *Client) Tracker() *Tracker {
	return c.tracker
}

// FileInfo asks the server to describe a file under its root.
func (c *Client) FileInfo(ctx context.Context, remotePath string) (*FileInfo, error) {
	q := url.Values{"path": {remotePath}}
	var info FileInfo
	if err := c.getJSON(ctx, FilesBasePath+"/info", q, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UploadFile pushes a local file to the server in parallel chunks and
// finalizes the session. Each chunk is sliced from the file, compressed and
// sealed on its own, then shipped with a hash of the exact wire bytes. The
// first failed chunk cancels the rest and the session is dropped server-side.
func (c *Client) UploadFile(ctx context.Context, localPath, remoteDir string, opts Options) (*FinalizeUploadResponse, error) {
	opts = opts.withDefaults()

	stat, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	fileSize := stat.Size()

	totalChunks := chunker.TotalChunks(fileSize, opts.ChunkSize)
	if totalChunks == 0 {
		// A zero-byte file still ships one empty chunk so the session has
		// something to finalize.
		totalChunks = 1
	}

	var cdc codec.Codec
	compress := false
	if opts.Compress != nil {
		compress = *opts.Compress
	} else {
		probe, err := codec.ByName(opts.Algorithm)
		if err != nil {
			return nil, err
		}
		advisor := chunker.NewAdvisor(probe)
		advisor.Level = opts.Level
		var ratio float64
		if compress, ratio, err = advisor.ShouldCompress(localPath); err != nil {
			return nil, err
		}
		logging.Log.WithFields(map[string]interface{}{
			"file":     localPath,
			"compress": compress,
			"ratio":    ratio,
		}).Debug("Compression decision")
	}
	if compress {
		if cdc, err = codec.ByName(opts.Algorithm); err != nil {
			return nil, err
		}
	}
	var enc encryptor.Encryptor
	if opts.Passphrase != "" {
		enc = encryptor.NewEncryptor()
	}

	filename := filepath.Base(localPath)
	initReq := InitUploadRequest{
		Filename:    filename,
		TotalChunks: totalChunks,
		Path:        remoteDir,
		Compressed:  compress,
		Encrypted:   enc != nil,
		Passphrase:  opts.Passphrase,
	}
	if compress {
		initReq.Algorithm = opts.Algorithm
	}

	var initResp InitUploadResponse
	if err := c.postJSON(ctx, UploadsBasePath+"/init", initReq, &initResp); err != nil {
		return nil, err
	}
	sessionID := initResp.SessionID

	c.tracker.Begin(sessionID, filename, DirectionUpload, totalChunks, fileSize)
	defer c.tracker.Remove(sessionID)
	c.setState(sessionID, StateSending, opts.OnProgress)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, opts.Parallelism)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < totalChunks; i++ {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)

		go func(chunkID int) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			wire, err := buildChunk(localPath, chunkID, fileSize, opts.ChunkSize, cdc, enc, opts)
			if err != nil {
				fail(fmt.Errorf("chunk %d: %w", chunkID, err))
				return
			}
			if err := c.pushChunk(ctx, sessionID, chunkID, wire); err != nil {
				fail(fmt.Errorf("chunk %d: %w", chunkID, err))
				return
			}
			c.advance(sessionID, int64(len(wire)), opts.OnProgress)
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		c.setState(sessionID, StateFailed, opts.OnProgress)
		// Best effort: free the server-side session right away rather than
		// waiting for the expiry sweep.
		if cancelErr := c.CancelUpload(context.Background(), sessionID); cancelErr != nil {
			logging.Log.WithError(cancelErr).WithField("session_id", sessionID).Debug("Cancel after failed upload did not land")
		}
		return nil, firstErr
	}

	c.setState(sessionID, StateAllSent, opts.OnProgress)

	var finResp FinalizeUploadResponse
	if err := c.postJSON(ctx, UploadsBasePath+"/"+sessionID+"/finalize", FinalizeUploadRequest{Path: remoteDir}, &finResp); err != nil {
		c.setState(sessionID, StateFailed, opts.OnProgress)
		return nil, err
	}
	c.setState(sessionID, StateFinalized, opts.OnProgress)

	return &finResp, nil
}

// DownloadFile fetches a remote file into localPath. Chunked mode pulls
// chunks in parallel, verifies each against its hash header, decompresses
// them independently and reassembles in order; nothing lands at localPath
// until every chunk arrived intact.
func (c *Client) DownloadFile(ctx context.Context, remotePath, localPath string, opts Options) error {
	// Only an explicit chunk size overrides the grid the server advertises;
	// total chunks and the per-request size must describe the same slicing.
	chunkSize := opts.ChunkSize
	opts = opts.withDefaults()

	if opts.Simple {
		return c.downloadSimple(ctx, remotePath, localPath, opts)
	}

	info, err := c.FileInfo(ctx, remotePath)
	if err != nil {
		return err
	}

	totalChunks := info.TotalChunks
	if chunkSize <= 0 {
		chunkSize = info.ChunkSize
	} else {
		totalChunks = chunker.TotalChunks(info.FileSize, chunkSize)
	}

	compress := info.ShouldCompress
	if opts.Compress != nil {
		compress = *opts.Compress
	}

	transferID := uuid.New().String()
	c.tracker.Begin(transferID, info.Filename, DirectionDownload, totalChunks, info.FileSize)
	defer c.tracker.Remove(transferID)
	c.setState(transferID, StateFetching, opts.OnProgress)

	chunks := make([][]byte, totalChunks)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, opts.Parallelism)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < totalChunks; i++ {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)

		go func(chunkID int) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			raw, err := c.fetchChunk(ctx, remotePath, chunkID, chunkSize, compress, opts)
			if err != nil {
				fail(fmt.Errorf("chunk %d: %w", chunkID, err))
				return
			}
			chunks[chunkID] = raw
			c.advance(transferID, int64(len(raw)), opts.OnProgress)
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		c.setState(transferID, StateFailed, opts.OnProgress)
		return firstErr
	}

	c.setState(transferID, StateReassembling, opts.OnProgress)
	if err := writeFileAtomic(localPath, chunks); err != nil {
		c.setState(transferID, StateFailed, opts.OnProgress)
		return err
	}
	c.setState(transferID, StateDone, opts.OnProgress)

	return nil
}

// UploadStatus reports the server-side view of an open session.
func (c *Client) UploadStatus(ctx context.Context, sessionID string) (*UploadStatusResponse, error) {
	var status UploadStatusResponse
	if err := c.getJSON(ctx, UploadsBasePath+"/"+sessionID+"/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelUpload drops an open session and its buffered chunks.
func (c *Client) CancelUpload(ctx context.Context, sessionID string) error {
	var resp CancelUploadResponse
	return c.postJSON(ctx, UploadsBasePath+"/"+sessionID+"/cancel", nil, &resp)
}

// History lists finished transfers recorded by the server, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]metadata.TransferRecord, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp TransferListResponse
	if err := c.getJSON(ctx, TransfersBasePath, q, &resp); err != nil {
		return nil, err
	}
	return resp.Transfers, nil
}

// buildChunk slices one chunk from the file and runs it through the wire
// pipeline: compress, then seal. The bytes returned are exactly what the
// hash header will cover.
func buildChunk(path string, chunkID int, fileSize, chunkSize int64, cdc codec.Codec, enc encryptor.Encryptor, opts Options) ([]byte, error) {
	var data []byte
	if fileSize > 0 {
		var err error
		if data, err = chunker.ReadChunk(path, chunkID, chunkSize); err != nil {
			return nil, err
		}
	} else {
		data = []byte{}
	}

	if cdc != nil {
		var err error
		if data, err = cdc.Compress(data, opts.Level); err != nil {
			return nil, err
		}
	}
	if enc != nil {
		var err error
		if data, err = enc.Seal(data, opts.Passphrase); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (c *Client) pushChunk(ctx context.Context, sessionID string, chunkID int, wire []byte) error {
	u := fmt.Sprintf("%s%s/%s/chunk/%d", c.baseURL, UploadsBasePath, sessionID, chunkID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(wire))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(HeaderChunkHash, codec.Hash(wire))
	req.Header.Set(HeaderChunkSize, strconv.Itoa(len(wire)))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// fetchChunk pulls one chunk, verifies the hash header against the wire
// bytes and undoes the chunk's own compression.
func (c *Client) fetchChunk(ctx context.Context, remotePath string, chunkID int, chunkSize int64, compress bool, opts Options) ([]byte, error) {
	q := url.Values{
		"path":     {remotePath},
		"chunk_id": {strconv.Itoa(chunkID)},
		"compress": {strconv.FormatBool(compress)},
	}
	if chunkSize > 0 {
		q.Set("chunk_size", strconv.FormatInt(chunkSize, 10))
	}
	if compress {
		q.Set("algorithm", opts.Algorithm)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+FilesBasePath+"/chunk?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.retry.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	wire, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if hash := resp.Header.Get(HeaderChunkHash); hash != "" && !codec.Verify(wire, hash) {
		return nil, fmt.Errorf("chunk %d failed its integrity check", chunkID)
	}

	wasCompressed := compress
	if raw := resp.Header.Get(HeaderCompressed); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			wasCompressed = parsed
		}
	}
	if !wasCompressed {
		return wire, nil
	}

	name := resp.Header.Get(HeaderAlgorithm)
	if name == "" {
		name = opts.Algorithm
	}
	cdc, err := codec.ByName(name)
	if err != nil {
		return nil, err
	}
	return cdc.Decompress(wire)
}

// downloadSimple streams the whole file in one GET.
func (c *Client) downloadSimple(ctx context.Context, remotePath, localPath string, opts Options) error {
	q := url.Values{"path": {remotePath}}
	if opts.Compress != nil && *opts.Compress {
		q.Set("compress", "true")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+FilesBasePath+"/download?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.retry.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	var src io.Reader = resp.Body
	// The transport only undoes gzip it negotiated itself; an explicit
	// compress=true response still needs decoding here.
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gz.Close()
		src = gz
	}

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, localPath)
}

// writeFileAtomic concatenates the chunks into a temp file and renames it
// into place, so a failed download never leaves a partial file behind.
func writeFileAtomic(path string, chunks [][]byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	for _, chunk := range chunks {
		if _, err := tmp.Write(chunk); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.retry.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Category = body.Error
		apiErr.Message = body.Message
		apiErr.Missing = body.MissingChunks
	} else {
		apiErr.Category = ErrCodeInternal
		apiErr.Message = resp.Status
	}
	return apiErr
}

func (c *Client) advance(id string, chunkBytes int64, onProgress func(Progress)) {
	if p, ok := c.tracker.Advance(id, chunkBytes); ok && onProgress != nil {
		onProgress(p)
	}
}

func (c *Client) setState(id string, state TransferState, onProgress func(Progress)) {
	if p, ok := c.tracker.SetState(id, state); ok && onProgress != nil {
		onProgress(p)
	}
}
