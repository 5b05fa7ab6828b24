package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// Commit durably replaces the snapshot for name with doc. Derived meta
// counters are recomputed and the update timestamp is stamped before
// serialization. Commit does not validate doc; callers run the schema
// validator first.
//
// Failure semantics: on WriteLockTimeout or any pre-rename failure the
// live snapshot is untouched. Commit never retries internally; callers
// own retry and backoff policy.
func (s *Store) Commit(ctx context.Context, name string, doc *graph.Document) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	doc.Touch(s.now())
	data, err := graph.MarshalDocument(doc)
	if err != nil {
		return &WriteError{Kind: WriteIOFailure, Path: s.Path(name), Err: err}
	}
	return s.commitBytes(ctx, name, data)
}

// CommitBytes durably replaces the snapshot for name with raw bytes.
// Used by restore paths that must reproduce a prior snapshot exactly,
// byte for byte, without re-serialization.
func (s *Store) CommitBytes(ctx context.Context, name string, data []byte) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return s.commitBytes(ctx, name, data)
}

func (s *Store) commitBytes(ctx context.Context, name string, data []byte) error {
	path := s.Path(name)

	// Temp file in the same directory: the rename below is only atomic
	// within one filesystem.
	tmp := path + ".tmp-" + uuid.Must(uuid.NewV7()).String()
	if err := writeAndSync(tmp, data); err != nil {
		os.Remove(tmp)
		return &WriteError{Kind: WriteIOFailure, Path: path, Err: err}
	}

	release, err := s.locker.Acquire(ctx, s.lockPath(name), s.lockTimeout)
	switch {
	case err == nil:
		defer release()
	case errors.Is(err, ErrLockUnsupported) && s.allowUnlocked:
		// Explicitly configured to proceed unserialized.
	case errors.Is(err, ErrLockUnsupported):
		os.Remove(tmp)
		return &WriteError{Kind: WriteLockUnsupported, Path: path, Err: err}
	case errors.Is(err, ErrLockTimeout):
		os.Remove(tmp)
		return &WriteError{Kind: WriteLockTimeout, Path: path, Err: err}
	default:
		os.Remove(tmp)
		return &WriteError{Kind: WriteIOFailure, Path: path, Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &WriteError{Kind: WriteIOFailure, Path: path, Err: err}
	}

	// Directory sync makes the rename itself durable. The snapshot is
	// already consistent at this point, so a sync failure is reported
	// but the commit is not rolled back.
	if err := syncDir(filepath.Dir(path)); err != nil {
		return &WriteError{Kind: WriteIOFailure, Path: path, Err: err}
	}
	return nil
}

// writeAndSync writes data to a fresh file and fsyncs it.
func writeAndSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

// syncDir fsyncs a directory so a just-renamed entry survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
