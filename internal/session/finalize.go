package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/swiftbyte/swiftbyte/internal/codec"
	"github.com/swiftbyte/swiftbyte/internal/encryptor"
	"github.com/swiftbyte/swiftbyte/pkg/logging"
)

// Finalize reassembles a complete session into the file at dstPath and
// returns the number of bytes written.
//
// An incomplete session fails with IncompleteError and SURVIVES, so the
// caller can push the missing chunks and try again. Once reassembly starts
// the session is removed from the table unconditionally: after a success
// the data lives in the file, after a failure the upload must restart from
// scratch. Reassembly itself runs outside the store lock.
func (s *Store) Finalize(id, dstPath string) (int64, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if missing := sess.missingLocked(); len(missing) > 0 {
		s.mu.Unlock()
		return 0, &IncompleteError{Missing: missing}
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	size, err := reassemble(sess, dstPath)
	if err != nil {
		logging.Log.WithFields(map[string]interface{}{
			"session_id": id,
			"filename":   sess.params.Filename,
		}).WithError(err).Error("Upload finalize failed")
		return 0, err
	}

	logging.Log.WithFields(map[string]interface{}{
		"session_id": id,
		"filename":   sess.params.Filename,
		"file_size":  size,
		"chunks":     sess.params.TotalChunks,
	}).Info("Upload finalized")

	return size, nil
}

// reassemble concatenates the chunks in ascending id order into dstPath.
// Each chunk is opened and decompressed independently. Output goes to a
// temp file in the destination directory and is renamed into place only
// after every chunk decoded cleanly; failures leave no partial file.
func reassemble(sess *session, dstPath string) (int64, error) {
	var dec codec.Codec
	if sess.params.Compressed {
		var err error
		if dec, err = codec.ByName(sess.params.Algorithm); err != nil {
			return 0, err
		}
	}
	var enc encryptor.Encryptor
	if sess.params.Encrypted {
		enc = encryptor.NewEncryptor()
	}

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, err
	}

	var written int64
	for i := 0; i < sess.params.TotalChunks; i++ {
		data := sess.chunks[i]
		if enc != nil {
			if data, err = enc.Open(data, sess.params.Passphrase); err != nil {
				return fail(fmt.Errorf("chunk %d: %w", i, err))
			}
		}
		if dec != nil {
			if data, err = dec.Decompress(data); err != nil {
				return fail(fmt.Errorf("chunk %d: %w", i, err))
			}
		}

		n, err := tmp.Write(data)
		if err != nil {
			return fail(fmt.Errorf("failed to write chunk %d: %w", i, err))
		}
		written += int64(n)
	}

	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync output: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move output into place: %w", err)
	}

	return written, nil
}
