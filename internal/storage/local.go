package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local serves files from one directory on the local filesystem.
type Local struct {
	base string
}

// NewLocal creates the root directory if needed and pins its
// symlink-resolved absolute path as the confinement boundary.
func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &Local{base: real}, nil
}

func (l *Local) Root() string {
	return l.base
}

// Resolve joins rel onto the root and normalizes it. The deepest existing
// ancestor of the target has its symlinks resolved, so a link inside the
// root cannot smuggle the path out; targets that do not exist yet (upload
// destinations) are still confined lexically.
func (l *Local) Resolve(rel string) (string, error) {
	abs := filepath.Join(l.base, rel)
	if !l.contains(abs) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}

	real, suffix := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(real)
		if err == nil {
			real = filepath.Join(resolved, suffix)
			break
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve %q: %w", rel, err)
		}
		if real == l.base || real == filepath.Dir(real) {
			real = filepath.Join(real, suffix)
			break
		}
		suffix = filepath.Join(filepath.Base(real), suffix)
		real = filepath.Dir(real)
	}

	if !l.contains(real) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return real, nil
}

func (l *Local) Stat(rel string) (os.FileInfo, error) {
	abs, err := l.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

func (l *Local) contains(p string) bool {
	return p == l.base || strings.HasPrefix(p, l.base+string(filepath.Separator))
}
