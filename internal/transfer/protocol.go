package transfer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/swiftbyte/swiftbyte/internal/codec"
	"github.com/swiftbyte/swiftbyte/internal/metadata"
)

// API version and base paths
const (
	APIVersion        = "v1"
	FilesBasePath     = "/api/" + APIVersion + "/files"
	UploadsBasePath   = "/api/" + APIVersion + "/uploads"
	TransfersBasePath = "/api/" + APIVersion + "/transfers"
)

// Chunk metadata travels in headers; the body is the raw chunk bytes.
const (
	HeaderChunkID     = "X-Chunk-Id"
	HeaderChunkHash   = "X-Chunk-Hash"
	HeaderChunkSize   = "X-Chunk-Size"
	HeaderTotalChunks = "X-Total-Chunks"
	HeaderCompressed  = "X-Compressed"
	HeaderAlgorithm   = "X-Compression"
)

// Error taxonomy categories carried in ErrorResponse.Error.
const (
	ErrCodeValidation   = "validation_error"
	ErrCodeAccessDenied = "access_denied"
	ErrCodeNotFound     = "not_found"
	ErrCodeIntegrity    = "integrity_error"
	ErrCodeIncomplete   = "incomplete_upload"
	ErrCodeInternal     = "internal_error"
)

// FileInfo describes a remote file and how the server suggests fetching it.
type FileInfo struct {
	Filename                  string  `json:"filename"`
	FileSize                  int64   `json:"file_size"`
	ChunkSize                 int64   `json:"chunk_size"`
	TotalChunks               int     `json:"total_chunks"`
	ShouldCompress            bool    `json:"should_compress"`
	EstimatedCompressionRatio float64 `json:"estimated_compression_ratio"`
	RecommendedChunkSize      int64   `json:"recommended_chunk_size"`
	MaxParallelChunks         int     `json:"max_parallel_chunks"`
	LastModified              int64   `json:"last_modified"`
}

// InitUploadRequest starts a chunked upload session.
type InitUploadRequest struct {
	Filename    string `json:"filename"`
	TotalChunks int    `json:"total_chunks"`
	Path        string `json:"path"`
	Compressed  bool   `json:"compressed"`
	Algorithm   string `json:"algorithm,omitempty"`
	Encrypted   bool   `json:"encrypted,omitempty"`
	Passphrase  string `json:"passphrase,omitempty"`
}

func (req *InitUploadRequest) Validate() error {
	if req.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	if req.Filename != filepath.Base(req.Filename) || req.Filename == "." || req.Filename == ".." {
		return fmt.Errorf("filename must not contain path separators")
	}
	if req.TotalChunks <= 0 {
		return fmt.Errorf("total_chunks must be positive")
	}
	if req.Compressed {
		if _, err := codec.ByName(req.algorithmOrDefault()); err != nil {
			return err
		}
	}
	if req.Encrypted && req.Passphrase == "" {
		return fmt.Errorf("passphrase is required for encrypted uploads")
	}
	return nil
}

func (req *InitUploadRequest) algorithmOrDefault() string {
	if req.Algorithm == "" {
		return codec.Default().Name()
	}
	return req.Algorithm
}

type InitUploadResponse struct {
	SessionID         string `json:"session_id"`
	Status            string `json:"status"`
	Filename          string `json:"filename"`
	TotalChunks       int    `json:"total_chunks"`
	MaxParallelChunks int    `json:"max_parallel_chunks"`
}

// ChunkUploadResponse reports session progress after one chunk lands.
type ChunkUploadResponse struct {
	Status         string `json:"status"`
	ChunkID        int    `json:"chunk_id"`
	ReceivedChunks int    `json:"received_chunks"`
	TotalChunks    int    `json:"total_chunks"`
	IsComplete     bool   `json:"is_complete"`
	MissingChunks  []int  `json:"missing_chunks"`
}

// FinalizeUploadRequest names the destination directory, relative to the
// served root. The finalized file lands at path/<session filename>.
type FinalizeUploadRequest struct {
	Path string `json:"path"`
}

type FinalizeUploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	Path     string `json:"path"`
}

type UploadStatusResponse struct {
	SessionID      string    `json:"session_id"`
	Filename       string    `json:"filename"`
	TotalChunks    int       `json:"total_chunks"`
	ReceivedChunks int       `json:"received_chunks"`
	MissingChunks  []int     `json:"missing_chunks"`
	IsComplete     bool      `json:"is_complete"`
	Compressed     bool      `json:"compressed"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

type CancelUploadResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

type TransferListResponse struct {
	Transfers []metadata.TransferRecord `json:"transfers"`
	Count     int                       `json:"count"`
}

// ErrorResponse is the body of every non-2xx reply. MissingChunks is set
// only for incomplete_upload so the caller can push just the gaps.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	Code          int    `json:"code"`
	MissingChunks []int  `json:"missing_chunks,omitempty"`
}

// Response helpers
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

func WriteErrorResponse(w http.ResponseWriter, statusCode int, category, message string) {
	WriteJSONResponse(w, statusCode, ErrorResponse{
		Error:   category,
		Message: message,
		Code:    statusCode,
	})
}
