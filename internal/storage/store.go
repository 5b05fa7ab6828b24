package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultLockTimeout bounds how long a commit waits for the advisory
// lock before returning WriteLockTimeout.
const DefaultLockTimeout = 5 * time.Second

// snapshotExt is the extension of live document files.
const snapshotExt = ".json"

// Document names map directly to file names, so the alphabet is locked
// down: no separators, no leading dot, lowercase only.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidName reports whether name may be used as a document name.
func ValidName(name string) bool {
	return namePattern.MatchString(name) && !strings.Contains(name, "..")
}

// Store maps document names to files under a single directory and
// performs all mutation through atomic commits. Everything is explicit
// construction state: no environment lookups, no globals.
type Store struct {
	dir           string
	locker        Locker
	lockTimeout   time.Duration
	allowUnlocked bool
	now           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLocker replaces the platform locker.
func WithLocker(l Locker) Option {
	return func(s *Store) { s.locker = l }
}

// WithLockTimeout bounds lock acquisition during commits.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithAllowUnlocked lets commits proceed without serialization when the
// locker reports ErrLockUnsupported. Off by default: unserialized
// writes are an explicit caller choice.
func WithAllowUnlocked() Option {
	return func(s *Store) { s.allowUnlocked = true }
}

// WithClock replaces the wall clock used for meta timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens a document store rooted at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &Store{
		dir:         dir,
		locker:      NewLocker(),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the live snapshot path for a document name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+snapshotExt)
}

// lockPath returns the advisory lock file path for a document name.
// The lock file sits beside the snapshot; it is never the snapshot
// itself, because the snapshot inode changes on every rename.
func (s *Store) lockPath(name string) string {
	return filepath.Join(s.dir, name+".lock")
}

// Exists reports whether a live snapshot exists for name.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Names lists every document name in the store, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base, ok := strings.CutSuffix(entry.Name(), snapshotExt)
		if !ok || !ValidName(base) {
			continue
		}
		names = append(names, base)
	}
	sort.Strings(names)
	return names, nil
}
