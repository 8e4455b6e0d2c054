package transfer

import (
	"strings"
	"testing"
)

func TestInitUploadRequestValidate(t *testing.T) {
	base := func() InitUploadRequest {
		return InitUploadRequest{Filename: "report.pdf", TotalChunks: 4, Path: "incoming"}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*InitUploadRequest)
		wantErr string
	}{
		{"missing filename", func(r *InitUploadRequest) { r.Filename = "" }, "filename is required"},
		{"filename with directory", func(r *InitUploadRequest) { r.Filename = "dir/evil.txt" }, "path separators"},
		{"filename climbing up", func(r *InitUploadRequest) { r.Filename = "../evil.txt" }, "path separators"},
		{"filename dot dot", func(r *InitUploadRequest) { r.Filename = ".." }, "path separators"},
		{"zero chunks", func(r *InitUploadRequest) { r.TotalChunks = 0 }, "must be positive"},
		{"negative chunks", func(r *InitUploadRequest) { r.TotalChunks = -3 }, "must be positive"},
		{"unknown algorithm", func(r *InitUploadRequest) {
			r.Compressed = true
			r.Algorithm = "brotli"
		}, "unknown compression algorithm"},
		{"encrypted without passphrase", func(r *InitUploadRequest) { r.Encrypted = true }, "passphrase"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			tc.mutate(&req)

			err := req.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tc.wantErr, err)
			}
		})
	}
}

func TestInitUploadRequestDefaultAlgorithm(t *testing.T) {
	req := InitUploadRequest{Filename: "a.txt", TotalChunks: 1, Compressed: true}
	if err := req.Validate(); err != nil {
		t.Fatalf("compressed request without explicit algorithm rejected: %v", err)
	}
	if got := req.algorithmOrDefault(); got != "gzip" {
		t.Fatalf("expected gzip as the default algorithm, got %q", got)
	}
}
