package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/swiftbyte/swiftbyte/config"
	"github.com/swiftbyte/swiftbyte/internal/chunker"
	"github.com/swiftbyte/swiftbyte/internal/codec"
	"github.com/swiftbyte/swiftbyte/internal/metadata"
	"github.com/swiftbyte/swiftbyte/internal/session"
	"github.com/swiftbyte/swiftbyte/internal/storage"
	"github.com/swiftbyte/swiftbyte/pkg/logging"
)

// Server wires the HTTP API to the served root, the upload session table
// and the transfer ledger. All dependencies are passed in by reference;
// the server owns none of their lifecycles.
type Server struct {
	cfg      *config.Config
	store    storage.Storage
	sessions *session.Store
	ledger   *metadata.Store
	advisor  *chunker.Advisor
}

func NewServer(cfg *config.Config, store storage.Storage, sessions *session.Store, ledger *metadata.Store) (*Server, error) {
	c, err := codec.ByName(cfg.Transfer.CompressionAlgorithm)
	if err != nil {
		return nil, err
	}

	advisor := chunker.NewAdvisor(c)
	advisor.Level = cfg.Transfer.CompressionLevel
	advisor.Threshold = cfg.Transfer.CompressionThreshold
	advisor.SampleBytes = cfg.Transfer.CompressionSample

	return &Server{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		ledger:   ledger,
		advisor:  advisor,
	}, nil
}

// RegisterRoutes attaches every API endpoint to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(FilesBasePath+"/info", s.handleFileInfo)
	mux.HandleFunc(FilesBasePath+"/chunk", s.handleFileChunk)
	mux.HandleFunc(FilesBasePath+"/download", s.handleFileDownload)
	mux.HandleFunc(UploadsBasePath+"/init", s.handleInitUpload)
	mux.HandleFunc(UploadsBasePath+"/", s.handleUploadSession)
	mux.HandleFunc(TransfersBasePath, s.handleTransfers)
}

// handleFileInfo reports size, chunk grid and compression advice for one
// file under the served root.
func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorResponse(w, http.StatusMethodNotAllowed, ErrCodeValidation, "method not allowed")
		return
	}

	rel := r.URL.Query().Get("path")
	if rel == "" {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "path parameter is required")
		return
	}

	abs, err := s.store.Resolve(rel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if info.IsDir() {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "path is a directory")
		return
	}

	shouldCompress, ratio, err := s.advisor.ShouldCompress(abs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	chunkSize := s.cfg.Transfer.ChunkSize
	WriteJSONResponse(w, http.StatusOK, FileInfo{
		Filename:                  info.Name(),
		FileSize:                  info.Size(),
		ChunkSize:                 chunkSize,
		TotalChunks:               chunker.TotalChunks(info.Size(), chunkSize),
		ShouldCompress:            shouldCompress,
		EstimatedCompressionRatio: ratio,
		RecommendedChunkSize:      chunker.RecommendChunkSize(info.Size()),
		MaxParallelChunks:         s.cfg.Transfer.MaxParallelChunks,
		LastModified:              info.ModTime().Unix(),
	})
}

// handleFileChunk serves one chunk of a file. Compression is applied to the
// chunk after slicing, so every chunk stands alone; the hash header covers
// the bytes exactly as they travel on the wire.
func (s *Server) handleFileChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorResponse(w, http.StatusMethodNotAllowed, ErrCodeValidation, "method not allowed")
		return
	}

	q := r.URL.Query()
	rel := q.Get("path")
	if rel == "" {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "path parameter is required")
		return
	}
	chunkID, err := strconv.Atoi(q.Get("chunk_id"))
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "chunk_id must be an integer")
		return
	}

	chunkSize := s.cfg.Transfer.ChunkSize
	if raw := q.Get("chunk_size"); raw != "" {
		chunkSize, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || chunkSize <= 0 {
			WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "chunk_size must be a positive integer")
			return
		}
		if max := s.cfg.Server.MaxChunkBytes; max > 0 && chunkSize > max {
			WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation,
				fmt.Sprintf("chunk_size exceeds server limit of %d bytes", max))
			return
		}
	}

	compress := true
	if raw := q.Get("compress"); raw != "" {
		if compress, err = strconv.ParseBool(raw); err != nil {
			WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "compress must be a boolean")
			return
		}
	}
	algorithm := q.Get("algorithm")
	if algorithm == "" {
		algorithm = s.cfg.Transfer.CompressionAlgorithm
	}

	abs, err := s.store.Resolve(rel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data, err := chunker.ReadChunk(abs, chunkID, chunkSize)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if compress {
		c, err := codec.ByName(algorithm)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if data, err = c.Compress(data, s.cfg.Transfer.CompressionLevel); err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set(HeaderAlgorithm, c.Name())
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set(HeaderChunkID, strconv.Itoa(chunkID))
	w.Header().Set(HeaderChunkHash, codec.Hash(data))
	w.Header().Set(HeaderChunkSize, strconv.Itoa(len(data)))
	w.Header().Set(HeaderTotalChunks, strconv.Itoa(chunker.TotalChunks(info.Size(), chunkSize)))
	w.Header().Set(HeaderCompressed, strconv.FormatBool(compress))
	w.Write(data)
}

// handleFileDownload streams a whole file in one response, optionally
// gzip-encoded. Small files do not need the chunk protocol.
func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorResponse(w, http.StatusMethodNotAllowed, ErrCodeValidation, "method not allowed")
		return
	}

	q := r.URL.Query()
	rel := q.Get("path")
	if rel == "" {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "path parameter is required")
		return
	}
	compress := false
	if raw := q.Get("compress"); raw != "" {
		var err error
		if compress, err = strconv.ParseBool(raw); err != nil {
			WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "compress must be a boolean")
			return
		}
	}

	abs, err := s.store.Resolve(rel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	f, err := os.Open(abs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if info.IsDir() {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "path is a directory")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))

	if compress {
		w.Header().Set("Content-Encoding", "gzip")
		gz, err := gzip.NewWriterLevel(w, s.cfg.Transfer.CompressionLevel)
		if err != nil {
			gz = gzip.NewWriter(w)
		}
		defer gz.Close()
		io.Copy(gz, f)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	io.Copy(w, f)
}

// handleInitUpload opens a new upload session and returns its id.
func (s *Server) handleInitUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorResponse(w, http.StatusMethodNotAllowed, ErrCodeValidation, "method not allowed")
		return
	}

	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	// The destination must resolve inside the served root before a single
	// chunk is accepted.
	destAbs, err := s.store.Resolve(req.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := os.MkdirAll(destAbs, 0o755); err != nil {
		s.writeError(w, err)
		return
	}

	params := session.Params{
		Filename:    req.Filename,
		TotalChunks: req.TotalChunks,
		DestDir:     req.Path,
		Compressed:  req.Compressed,
		Encrypted:   req.Encrypted,
		Passphrase:  req.Passphrase,
	}
	if req.Compressed {
		params.Algorithm = req.algorithmOrDefault()
	}

	id := uuid.New().String()
	if _, err := s.sessions.Create(id, params); err != nil {
		s.writeError(w, err)
		return
	}

	logging.Log.WithFields(map[string]interface{}{
		"session_id":   id,
		"filename":     req.Filename,
		"total_chunks": req.TotalChunks,
		"compressed":   req.Compressed,
		"encrypted":    req.Encrypted,
	}).Info("Upload session initialized")

	WriteJSONResponse(w, http.StatusOK, InitUploadResponse{
		SessionID:         id,
		Status:            "initialized",
		Filename:          req.Filename,
		TotalChunks:       req.TotalChunks,
		MaxParallelChunks: s.cfg.Transfer.MaxParallelChunks,
	})
}

// handleUploadSession routes /uploads/{id}/... to the per-session actions.
func (s *Server) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, UploadsBasePath+"/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		WriteErrorResponse(w, http.StatusNotFound, ErrCodeNotFound, "upload session id is required")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 3 && parts[1] == "chunk" && r.Method == http.MethodPost:
		chunkID, err := strconv.Atoi(parts[2])
		if err != nil {
			WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "chunk id must be an integer")
			return
		}
		s.handleChunkUpload(w, r, id, chunkID)
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodGet:
		s.handleUploadStatus(w, id)
	case len(parts) == 2 && parts[1] == "finalize" && r.Method == http.MethodPost:
		s.handleFinalizeUpload(w, r, id)
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		s.handleCancelUpload(w, id)
	default:
		WriteErrorResponse(w, http.StatusNotFound, ErrCodeNotFound, "unknown upload endpoint")
	}
}

// handleChunkUpload stores one chunk of an open session. The body carries
// the wire bytes; X-Chunk-Hash, when present, must match them exactly.
func (s *Server) handleChunkUpload(w http.ResponseWriter, r *http.Request, id string, chunkID int) {
	body := r.Body
	if max := s.cfg.Server.MaxChunkBytes; max > 0 {
		body = http.MaxBytesReader(w, r.Body, max)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("failed to read chunk body: %v", err))
		return
	}

	if sizeHeader := r.Header.Get(HeaderChunkSize); sizeHeader != "" {
		expected, err := strconv.Atoi(sizeHeader)
		if err != nil || expected != len(data) {
			WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation,
				fmt.Sprintf("chunk size mismatch: header %s, body %d bytes", sizeHeader, len(data)))
			return
		}
	}
	if hash := r.Header.Get(HeaderChunkHash); hash != "" && !codec.Verify(data, hash) {
		logging.Log.WithFields(map[string]interface{}{
			"session_id": id,
			"chunk_id":   chunkID,
		}).Warn("Chunk hash mismatch, rejecting")
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeIntegrity,
			fmt.Sprintf("chunk %d hash does not match its payload", chunkID))
		return
	}

	snap, err := s.sessions.AddChunk(id, chunkID, data)
	if err != nil {
		s.writeError(w, err)
		return
	}

	WriteJSONResponse(w, http.StatusOK, ChunkUploadResponse{
		Status:         "chunk_received",
		ChunkID:        chunkID,
		ReceivedChunks: snap.Received,
		TotalChunks:    snap.TotalChunks,
		IsComplete:     snap.IsComplete,
		MissingChunks:  snap.Missing,
	})
}

// handleFinalizeUpload reassembles a complete session into its destination
// file. An incomplete session reports the missing chunk ids and stays open.
func (s *Server) handleFinalizeUpload(w http.ResponseWriter, r *http.Request, id string) {
	var req FinalizeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body")
		return
	}

	snap, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	destRel := req.Path
	if destRel == "" {
		destRel = snap.DestDir
	}
	destAbs, err := s.store.Resolve(destRel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := os.MkdirAll(destAbs, 0o755); err != nil {
		s.writeError(w, err)
		return
	}

	// Resolve the joined output path too: the filename was validated at
	// init, but the full path must still land inside the root.
	relPath := filepath.Join(destRel, snap.Filename)
	outAbs, err := s.store.Resolve(relPath)
	if err != nil {
		s.writeError(w, err)
		return
	}

	written, err := s.sessions.Finalize(id, outAbs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.ledger != nil {
		rec := metadata.NewUploadRecord(id, snap.Filename, relPath, written, snap.TotalChunks)
		rec.Compressed = snap.Compressed
		rec.Algorithm = snap.Algorithm
		rec.Encrypted = snap.Encrypted
		rec.DurationMS = time.Since(snap.CreatedAt).Milliseconds()
		if err := s.ledger.PutTransfer(rec); err != nil {
			logging.Log.WithError(err).Warn("Failed to record transfer in ledger")
		}
	}

	WriteJSONResponse(w, http.StatusOK, FinalizeUploadResponse{
		Status:   "completed",
		Filename: snap.Filename,
		FileSize: written,
		Path:     relPath,
	})
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, id string) {
	snap, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	WriteJSONResponse(w, http.StatusOK, UploadStatusResponse{
		SessionID:      snap.ID,
		Filename:       snap.Filename,
		TotalChunks:    snap.TotalChunks,
		ReceivedChunks: snap.Received,
		MissingChunks:  snap.Missing,
		IsComplete:     snap.IsComplete,
		Compressed:     snap.Compressed,
		CreatedAt:      snap.CreatedAt,
		LastUpdated:    snap.LastUpdated,
	})
}

func (s *Server) handleCancelUpload(w http.ResponseWriter, id string) {
	if !s.sessions.Remove(id) {
		WriteErrorResponse(w, http.StatusNotFound, ErrCodeNotFound,
			fmt.Sprintf("unknown upload session: %s", id))
		return
	}

	logging.Log.WithField("session_id", id).Info("Upload session cancelled")
	WriteJSONResponse(w, http.StatusOK, CancelUploadResponse{
		Status:    "cancelled",
		SessionID: id,
	})
}

// handleTransfers lists finished transfers from the ledger, newest first.
func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorResponse(w, http.StatusMethodNotAllowed, ErrCodeValidation, "method not allowed")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records := []metadata.TransferRecord{}
	if s.ledger != nil {
		var err error
		records, err = s.ledger.ListTransfers(limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	WriteJSONResponse(w, http.StatusOK, TransferListResponse{
		Transfers: records,
		Count:     len(records),
	})
}

// writeError maps internal errors onto the response taxonomy. Decode and
// decrypt failures during finalize land in internal_error: by then every
// chunk already passed its hash check, so corruption points at the server.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var incomplete *session.IncompleteError
	switch {
	case errors.As(err, &incomplete):
		WriteJSONResponse(w, http.StatusBadRequest, ErrorResponse{
			Error:         ErrCodeIncomplete,
			Message:       err.Error(),
			Code:          http.StatusBadRequest,
			MissingChunks: incomplete.Missing,
		})
	case errors.Is(err, storage.ErrOutsideRoot):
		WriteErrorResponse(w, http.StatusForbidden, ErrCodeAccessDenied, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		WriteErrorResponse(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, chunker.ErrOutOfRange),
		errors.Is(err, session.ErrChunkRange),
		errors.Is(err, codec.ErrUnknownAlgorithm):
		WriteErrorResponse(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		logging.Log.WithError(err).Error("Request failed")
		WriteErrorResponse(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
