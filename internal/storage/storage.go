package storage

import (
	"errors"
	"os"
)

// ErrOutsideRoot reports a path that resolves outside the served root.
var ErrOutsideRoot = errors.New("path escapes the served root")

// Storage confines all file access to a single trusted root directory.
// Every server operation that takes a client-supplied path goes through
// Resolve before touching the filesystem.
type Storage interface {
	// Root returns the absolute path of the served root.
	Root() string
	// Resolve maps a client-supplied relative path to an absolute path,
	// rejecting anything that is not the root itself or a strict
	// descendant of it.
	Resolve(rel string) (string, error)
	// Stat resolves rel and stats the target.
	Stat(rel string) (os.FileInfo, error)
}
