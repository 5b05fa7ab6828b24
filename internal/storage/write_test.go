package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/testutil"
)

var storeTime = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func testStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	clock := testutil.NewClock(storeTime)
	all := append([]Option{WithClock(clock.Now)}, opts...)
	s, err := Open(t.TempDir(), all...)
	require.NoError(t, err)
	return s
}

func testDoc() *graph.Document {
	doc := graph.NewDocument(storeTime)
	doc.Nodes = append(doc.Nodes, graph.Node{
		ID: "n1", Type: graph.TypeEntity, Label: "A", Confidence: 0.9,
		Evidence: "observed directly",
	})
	return doc
}

func TestCommit_RoundTrip(t *testing.T) {
	s := testStore(t)
	doc := testDoc()

	require.NoError(t, s.Commit(context.Background(), "triad-auth", doc))

	loaded, err := s.Load("triad-auth")
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
	assert.Equal(t, 1, loaded.Meta.NodeCount)
	assert.Equal(t, 0, loaded.Meta.EdgeCount)
	assert.Equal(t, "2026-02-03T04:05:06Z", loaded.Meta.UpdatedAt)
}

func TestCommit_RecomputesDerivedCounts(t *testing.T) {
	s := testStore(t)
	doc := testDoc()
	doc.Meta.NodeCount = 99 // hand-set counts never survive a commit
	doc.Meta.EdgeCount = 99

	require.NoError(t, s.Commit(context.Background(), "wf", doc))

	loaded, err := s.Load("wf")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Meta.NodeCount)
	assert.Equal(t, 0, loaded.Meta.EdgeCount)
}

func TestCommit_InvalidName(t *testing.T) {
	s := testStore(t)
	for _, name := range []string{"", "../escape", "UPPER", ".hidden", "a/b"} {
		err := s.Commit(context.Background(), name, testDoc())
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestCommit_LeavesNoTempFilesBehind(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc()))
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc()))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "leftover temp file %s", e.Name())
	}
}

// stubLocker fails every acquisition with a fixed error.
type stubLocker struct{ err error }

func (l stubLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, l.err
}

func TestCommit_LockTimeoutLeavesLiveSnapshotUntouched(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc()))
	before, err := s.LoadBytes("wf")
	require.NoError(t, err)

	blocked, err := Open(s.Dir(),
		WithClock(func() time.Time { return storeTime }),
		WithLocker(stubLocker{err: ErrLockTimeout}),
	)
	require.NoError(t, err)

	changed := testDoc()
	changed.Nodes[0].Label = "B"
	err = blocked.Commit(context.Background(), "wf", changed)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, WriteLockTimeout, we.Kind)
	assert.True(t, IsLockTimeout(err))

	after, err := s.LoadBytes("wf")
	require.NoError(t, err)
	assert.Equal(t, before, after, "pre-write bytes must be intact")

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestCommit_LockUnsupported(t *testing.T) {
	dir := t.TempDir()

	strict, err := Open(dir, WithLocker(stubLocker{err: ErrLockUnsupported}))
	require.NoError(t, err)
	err = strict.Commit(context.Background(), "wf", testDoc())
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, WriteLockUnsupported, we.Kind)
	assert.False(t, strict.Exists("wf"))

	relaxed, err := Open(dir,
		WithLocker(stubLocker{err: ErrLockUnsupported}),
		WithAllowUnlocked(),
	)
	require.NoError(t, err)
	require.NoError(t, relaxed.Commit(context.Background(), "wf", testDoc()))
	assert.True(t, relaxed.Exists("wf"))
}

func TestCommit_ContendedLockSerializesWriters(t *testing.T) {
	s := testStore(t, WithLockTimeout(100*time.Millisecond))

	// Hold the document's lock the way a concurrent writer would.
	release, err := NewLocker().Acquire(context.Background(), s.lockPath("wf"), time.Second)
	require.NoError(t, err)

	err = s.Commit(context.Background(), "wf", testDoc())
	require.True(t, IsLockTimeout(err), "commit under a held lock must time out, got %v", err)
	assert.False(t, s.Exists("wf"))

	release()
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc()))
}

func TestCommit_ConcurrentSameName(t *testing.T) {
	s := testStore(t, WithLockTimeout(2*time.Second))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := testDoc()
			errs[i] = s.Commit(context.Background(), "wf", doc)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	// The live file is one complete snapshot, never a merge.
	loaded, err := s.Load("wf")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Meta.NodeCount)
}

func TestCommit_CancelledContext(t *testing.T) {
	s := testStore(t, WithLockTimeout(5*time.Second))

	release, err := NewLocker().Acquire(context.Background(), s.lockPath("wf"), time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err = s.Commit(ctx, "wf", testDoc())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || IsLockTimeout(err))
	assert.False(t, s.Exists("wf"))
}

func TestInterruptedWrite_StrayTempDoesNotCorruptLive(t *testing.T) {
	// A crash after the temp file is written but before the rename
	// leaves a stray temp file; the live snapshot must be untouched and
	// still load cleanly.
	s := testStore(t)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc()))
	before, err := s.LoadBytes("wf")
	require.NoError(t, err)

	stray := s.Path("wf") + ".tmp-0192f0c1-dead-7bee-8000-000000000000"
	require.NoError(t, os.WriteFile(stray, []byte(`{"nodes": [`), 0o644))

	after, err := s.LoadBytes("wf")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	loaded, err := s.Load("wf")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Meta.NodeCount)

	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"wf"}, names, "stray temp files are not documents")
}

func TestValidName(t *testing.T) {
	valid := []string{"wf", "triad-auth", "a.b", "research_2", "0day"}
	invalid := []string{"", "UPPER", ".hidden", "a/b", "a\\b", "-lead", "_lead"}

	for _, name := range valid {
		assert.True(t, ValidName(name), name)
	}
	for _, name := range invalid {
		assert.False(t, ValidName(name), name)
	}
}

func TestNames_SortedAndFiltered(t *testing.T) {
	s := testStore(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Commit(context.Background(), name, testDoc()))
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "backups"), 0o755))

	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}
