package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveConfinesToRoot(t *testing.T) {
	root := t.TempDir()
	local, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	ok := []string{
		"",
		".",
		"file.txt",
		"sub/dir/file.txt",
		"sub/../file.txt",
		"/leading/slash.txt",
	}
	for _, rel := range ok {
		abs, err := local.Resolve(rel)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", rel, err)
			continue
		}
		if !strings.HasPrefix(abs, local.Root()) {
			t.Errorf("Resolve(%q) = %q, not under root %q", rel, abs, local.Root())
		}
	}

	escapes := []string{
		"..",
		"../outside.txt",
		"sub/../../outside.txt",
		"../../../../etc/passwd",
	}
	for _, rel := range escapes {
		if _, err := local.Resolve(rel); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Resolve(%q) error = %v, want ErrOutsideRoot", rel, err)
		}
	}
}

func TestResolveRootItself(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	abs, err := local.Resolve("")
	if err != nil {
		t.Fatalf("Resolve(\"\") failed: %v", err)
	}
	if abs != local.Root() {
		t.Errorf("Resolve(\"\") = %q, want root %q", abs, local.Root())
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	root := t.TempDir()
	local, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	link := filepath.Join(root, "leak")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	// Existing symlinked directory.
	if _, err := local.Resolve("leak"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Resolve(leak) error = %v, want ErrOutsideRoot", err)
	}
	// Not-yet-existing file beneath a symlinked directory.
	if _, err := local.Resolve("leak/new.bin"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Resolve(leak/new.bin) error = %v, want ErrOutsideRoot", err)
	}
	// Deeper missing path beneath the symlinked directory.
	if _, err := local.Resolve("leak/a/b/new.bin"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Resolve(leak/a/b/new.bin) error = %v, want ErrOutsideRoot", err)
	}
}

func TestResolveAllowsInternalSymlink(t *testing.T) {
	root := t.TempDir()
	local, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	target := filepath.Join(root, "real")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(root, "alias")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	abs, err := local.Resolve("alias/file.txt")
	if err != nil {
		t.Fatalf("Resolve(alias/file.txt) failed: %v", err)
	}
	if !strings.HasPrefix(abs, local.Root()) {
		t.Errorf("internal symlink resolved outside root: %q", abs)
	}
}

func TestStat(t *testing.T) {
	root := t.TempDir()
	local, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "present.txt"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	info, err := local.Stat("present.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Stat size = %d, want 4", info.Size())
	}

	if _, err := local.Stat("absent.txt"); !os.IsNotExist(err) {
		t.Errorf("Stat(absent) error = %v, want not-exist", err)
	}
	if _, err := local.Stat("../escape.txt"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("Stat(escape) error = %v, want ErrOutsideRoot", err)
	}
}
