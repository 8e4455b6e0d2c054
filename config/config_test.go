package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Transfer.ChunkSize != 1024*1024 {
		t.Errorf("expected default chunk size 1MiB, got %d", cfg.Transfer.ChunkSize)
	}
	if cfg.Server.SessionTimeout != time.Hour {
		t.Errorf("expected default session timeout 1h, got %v", cfg.Server.SessionTimeout)
	}
	if cfg.Transfer.CompressionThreshold != 0.9 {
		t.Errorf("expected default threshold 0.9, got %v", cfg.Transfer.CompressionThreshold)
	}
	if cfg.Transfer.CompressionAlgorithm != "gzip" {
		t.Errorf("expected default algorithm gzip, got %q", cfg.Transfer.CompressionAlgorithm)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("unexpected addr %q", cfg.Addr())
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: 9090
  root_dir: /srv/files
  session_timeout: 30m
transfer:
  chunk_size: 4194304
  max_parallel_chunks: 8
debug: true
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.RootDir != "/srv/files" {
		t.Errorf("expected root dir /srv/files, got %q", cfg.Server.RootDir)
	}
	if cfg.Server.SessionTimeout != 30*time.Minute {
		t.Errorf("expected timeout 30m, got %v", cfg.Server.SessionTimeout)
	}
	if cfg.Transfer.ChunkSize != 4*1024*1024 {
		t.Errorf("expected chunk size 4MiB, got %d", cfg.Transfer.ChunkSize)
	}
	if cfg.Transfer.MaxParallelChunks != 8 {
		t.Errorf("expected 8 parallel chunks, got %d", cfg.Transfer.MaxParallelChunks)
	}
	if !cfg.Debug {
		t.Error("expected debug true")
	}
}
