// Package backup keeps bounded, timestamped generations of document
// snapshots and restores them through the atomic writer.
//
// Layout: one retention directory per document name under the backup
// root, each generation named <name>.<stamp>.json with a fixed-width
// UTC stamp, so listing newest-first needs only filenames, never file
// contents. A commit that found no prior snapshot records a zero-byte
// <name>.<stamp>.absent marker instead, so the retention history shows
// that the document did not exist before that write.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/storage"
)

// DefaultMaxBackups is the retention bound when none is configured.
const DefaultMaxBackups = 5

// stampLayout is fixed-width, so lexicographic order on generation
// filenames is chronological order.
const stampLayout = "20060102T150405.000000000"

// Generation filename suffixes.
const (
	suffixSnapshot = ".json"
	suffixAbsent   = ".absent"
)

// Typed failures surfaced by restore operations.
var (
	// ErrNoBackup: no generation exists for the document.
	ErrNoBackup = errors.New("no backup available")

	// ErrAbsentGeneration: the selected generation records that the
	// document did not exist. There are no bytes to restore; reverting
	// to non-existence is a manual decision, not something restore does
	// implicitly.
	ErrAbsentGeneration = errors.New("generation records an absent document")

	// ErrUnknownGeneration: the requested generation id does not exist.
	ErrUnknownGeneration = errors.New("unknown backup generation")
)

// Handle identifies one retained generation.
type Handle struct {
	// Name is the document the generation belongs to.
	Name string
	// ID is the generation identifier (the filename), unique per name
	// and usable across processes.
	ID string
	// CreatedAt is when the generation was recorded.
	CreatedAt time.Time
	// Absent marks a generation recording that no document existed.
	Absent bool

	path string
	// seq disambiguates generations sharing one stamp: 1 for the plain
	// filename, then the collision counter.
	seq int
}

// Manager owns the retention store. The retention bound and clock are
// explicit construction parameters; there is no ambient configuration.
type Manager struct {
	store *storage.Store
	dir   string
	max   int
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxBackups sets the per-document retention bound.
func WithMaxBackups(n int) Option {
	return func(m *Manager) { m.max = n }
}

// WithClock replaces the wall clock used to stamp generations.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a backup manager rooted at dir, restoring through
// store's atomic writer.
func NewManager(store *storage.Store, dir string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup root: %w", err)
	}
	m := &Manager{
		store: store,
		dir:   dir,
		max:   DefaultMaxBackups,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.max < 1 {
		return nil, fmt.Errorf("max backups must be at least 1, got %d", m.max)
	}
	return m, nil
}

// MaxBackups returns the configured retention bound.
func (m *Manager) MaxBackups() int { return m.max }

func (m *Manager) nameDir(name string) string {
	return filepath.Join(m.dir, name)
}

// Backup records the current on-disk state of name as a new generation
// and prunes the oldest generations beyond the retention bound. Called
// before every commit, so the newest generation is always the pre-write
// state. If no snapshot exists yet, an absence marker is recorded.
//
// After a successful call the generation count for name is at most the
// configured maximum.
func (m *Manager) Backup(name string) (*Handle, error) {
	if !storage.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}

	data, err := m.store.LoadBytes(name)
	absent := false
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("backup %q: %w", name, err)
		}
		absent = true
		data = nil
	}

	dir := m.nameDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup %q: %w", name, err)
	}

	stamp := m.now().UTC().Format(stampLayout)
	suffix := suffixSnapshot
	if absent {
		suffix = suffixAbsent
	}

	// Same-stamp collisions get a numeric suffix rather than clobbering
	// an existing generation.
	id := name + "." + stamp + suffix
	path := filepath.Join(dir, id)
	seq := 1
	for n := 2; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		id = fmt.Sprintf("%s.%s-%d%s", name, stamp, n, suffix)
		path = filepath.Join(dir, id)
		seq = n
	}

	if err := writeGeneration(path, data); err != nil {
		return nil, fmt.Errorf("backup %q: %w", name, err)
	}

	if err := m.prune(name); err != nil {
		return nil, fmt.Errorf("backup %q: %w", name, err)
	}

	created, _ := time.Parse(stampLayout, stamp)
	return &Handle{Name: name, ID: id, CreatedAt: created, Absent: absent, path: path, seq: seq}, nil
}

// writeGeneration writes a generation file durably. Generations are
// immutable once written: create-exclusive, fsync, read-only mode.
func writeGeneration(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	if len(data) > 0 {
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return fmt.Errorf("write generation: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("sync generation: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close generation: %w", err)
	}
	return nil
}

// List returns the generations for name, newest first. Ordering comes
// from the fixed-width stamp embedded in each filename; no generation
// is opened.
func (m *Manager) List(name string) ([]Handle, error) {
	if !storage.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}

	entries, err := os.ReadDir(m.nameDir(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list backups for %q: %w", name, err)
	}

	var handles []Handle
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		h, ok := m.parseGeneration(name, entry.Name())
		if !ok {
			continue
		}
		handles = append(handles, h)
	}

	// Stamps order generations chronologically; within one stamp the
	// collision counter decides, since "-2" would otherwise sort before
	// the plain filename.
	sort.Slice(handles, func(i, j int) bool {
		if !handles[i].CreatedAt.Equal(handles[j].CreatedAt) {
			return handles[i].CreatedAt.After(handles[j].CreatedAt)
		}
		return handles[i].seq > handles[j].seq
	})
	return handles, nil
}

// parseGeneration recovers a Handle from a generation filename.
func (m *Manager) parseGeneration(name, filename string) (Handle, bool) {
	rest, ok := strings.CutPrefix(filename, name+".")
	if !ok {
		return Handle{}, false
	}

	absent := false
	stamp, ok := strings.CutSuffix(rest, suffixSnapshot)
	if !ok {
		stamp, ok = strings.CutSuffix(rest, suffixAbsent)
		if !ok {
			return Handle{}, false
		}
		absent = true
	}
	// Split off the collision counter if present.
	seq := 1
	if i := strings.IndexByte(stamp, '-'); i >= 0 {
		n, err := strconv.Atoi(stamp[i+1:])
		if err != nil {
			return Handle{}, false
		}
		seq = n
		stamp = stamp[:i]
	}

	created, err := time.Parse(stampLayout, stamp)
	if err != nil {
		return Handle{}, false
	}

	return Handle{
		Name:      name,
		ID:        filename,
		CreatedAt: created,
		Absent:    absent,
		path:      filepath.Join(m.nameDir(name), filename),
		seq:       seq,
	}, true
}

// prune removes the oldest generations beyond the retention bound.
func (m *Manager) prune(name string) error {
	handles, err := m.List(name)
	if err != nil {
		return err
	}
	for _, h := range handles[min(len(handles), m.max):] {
		if err := os.Remove(h.path); err != nil {
			return fmt.Errorf("prune generation %s: %w", h.ID, err)
		}
	}
	return nil
}

// Lookup resolves a generation id for name.
func (m *Manager) Lookup(name, id string) (*Handle, error) {
	handles, err := m.List(name)
	if err != nil {
		return nil, err
	}
	for i := range handles {
		if handles[i].ID == id {
			return &handles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownGeneration, name, id)
}

// RestoreLatest copies the newest generation's bytes back onto the live
// path through the atomic writer, so restore has the same crash
// consistency as a commit. Returns the restored handle.
func (m *Manager) RestoreLatest(ctx context.Context, name string) (*Handle, error) {
	handles, err := m.List(name)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoBackup, name)
	}
	if err := m.RestoreFrom(ctx, &handles[0]); err != nil {
		return nil, err
	}
	return &handles[0], nil
}

// RestoreFrom restores a specific generation through the atomic writer.
func (m *Manager) RestoreFrom(ctx context.Context, h *Handle) error {
	if h.Absent {
		return fmt.Errorf("restore %s/%s: %w", h.Name, h.ID, ErrAbsentGeneration)
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		return fmt.Errorf("read generation %s: %w", h.ID, err)
	}
	if err := m.store.CommitBytes(ctx, h.Name, data); err != nil {
		return fmt.Errorf("restore %s/%s: %w", h.Name, h.ID, err)
	}

	// Verify the live snapshot now carries exactly the generation's
	// bytes.
	restored, err := m.store.LoadBytes(h.Name)
	if err != nil {
		return fmt.Errorf("restore %s/%s: verify: %w", h.Name, h.ID, err)
	}
	if graph.HashBytes(restored) != graph.HashBytes(data) {
		return fmt.Errorf("restore %s/%s: restored bytes do not match the generation", h.Name, h.ID)
	}
	return nil
}

// Hash returns the content hash of a generation's bytes. Generations
// are small bounded documents, so hashing on demand beats maintaining
// sidecar metadata that could itself go stale.
func (m *Manager) Hash(h *Handle) (string, error) {
	if h.Absent {
		return "", nil
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		return "", fmt.Errorf("read generation %s: %w", h.ID, err)
	}
	return graph.HashBytes(data), nil
}
