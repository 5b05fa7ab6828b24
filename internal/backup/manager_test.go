package backup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/storage"
	"github.com/graphkeep/graphkeep/internal/testutil"
)

var backupTime = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func testManager(t *testing.T, opts ...Option) (*Manager, *storage.Store, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(backupTime)
	s, err := storage.Open(t.TempDir(), storage.WithClock(clock.Now))
	require.NoError(t, err)
	all := append([]Option{WithClock(clock.Now)}, opts...)
	m, err := NewManager(s, t.TempDir(), all...)
	require.NoError(t, err)
	return m, s, clock
}

func testDoc(label string) *graph.Document {
	doc := graph.NewDocument(backupTime)
	doc.Nodes = append(doc.Nodes, graph.Node{
		ID: "n1", Type: graph.TypeEntity, Label: label, Confidence: 0.9,
		Evidence: "observed directly",
	})
	return doc
}

func TestBackup_CapturesPreWriteBytes(t *testing.T) {
	m, s, clock := testManager(t)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v1")))
	before, err := s.LoadBytes("wf")
	require.NoError(t, err)

	clock.Advance(time.Second)
	h, err := m.Backup("wf")
	require.NoError(t, err)
	assert.False(t, h.Absent)
	assert.Equal(t, "wf", h.Name)

	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v2")))

	handles, err := m.List("wf")
	require.NoError(t, err)
	require.Len(t, handles, 1)

	got, err := os.ReadFile(handles[0].path)
	require.NoError(t, err)
	assert.Equal(t, before, got, "generation must hold the pre-write bytes")
}

func TestBackup_AbsentDocumentRecordsMarker(t *testing.T) {
	m, _, _ := testManager(t)

	h, err := m.Backup("wf")
	require.NoError(t, err)
	assert.True(t, h.Absent)

	handles, err := m.List("wf")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.True(t, handles[0].Absent)

	err = m.RestoreFrom(context.Background(), &handles[0])
	assert.ErrorIs(t, err, ErrAbsentGeneration)
}

func TestBackup_InvalidName(t *testing.T) {
	m, _, _ := testManager(t)
	_, err := m.Backup("../escape")
	assert.ErrorIs(t, err, storage.ErrInvalidName)
}

func TestBackup_RetentionPrunesOldest(t *testing.T) {
	m, s, clock := testManager(t, WithMaxBackups(3))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v"+string(rune('1'+i)))))
		clock.Advance(time.Second)
		_, err := m.Backup("wf")
		require.NoError(t, err)
	}

	handles, err := m.List("wf")
	require.NoError(t, err)
	require.Len(t, handles, 3)

	// Newest first, and the survivors are the three most recent stamps.
	assert.True(t, handles[0].CreatedAt.After(handles[1].CreatedAt))
	assert.True(t, handles[1].CreatedAt.After(handles[2].CreatedAt))
	assert.Equal(t, backupTime.Add(5*time.Second), handles[0].CreatedAt)
	assert.Equal(t, backupTime.Add(3*time.Second), handles[2].CreatedAt)
}

func TestBackup_SameStampDoesNotClobber(t *testing.T) {
	m, s, _ := testManager(t)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v1")))

	h1, err := m.Backup("wf")
	require.NoError(t, err)
	h2, err := m.Backup("wf") // clock frozen, identical stamp
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID, h2.ID)

	handles, err := m.List("wf")
	require.NoError(t, err)
	assert.Len(t, handles, 2)
}

func TestList_SameStampOrdersCollisionsNewestFirst(t *testing.T) {
	m, s, _ := testManager(t)

	// Three backups under one frozen-clock stamp: the plain filename,
	// then collision counters 2 and 3.
	var hashes []string
	for _, label := range []string{"v1", "v2", "v3"} {
		require.NoError(t, s.Commit(context.Background(), "wf", testDoc(label)))
		data, err := s.LoadBytes("wf")
		require.NoError(t, err)
		hashes = append(hashes, graph.HashBytes(data))
		_, err = m.Backup("wf")
		require.NoError(t, err)
	}

	handles, err := m.List("wf")
	require.NoError(t, err)
	require.Len(t, handles, 3)
	for i, want := range []string{hashes[2], hashes[1], hashes[0]} {
		got, err := m.Hash(&handles[i])
		require.NoError(t, err)
		assert.Equal(t, want, got, "handles[%d] out of order", i)
	}

	h, err := m.RestoreLatest(context.Background(), "wf")
	require.NoError(t, err)
	assert.Equal(t, handles[0].ID, h.ID)
}

func TestRestoreLatest_RevertsToPreWriteState(t *testing.T) {
	m, s, clock := testManager(t)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("good")))
	before, err := s.LoadBytes("wf")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = m.Backup("wf")
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("bad")))

	h, err := m.RestoreLatest(context.Background(), "wf")
	require.NoError(t, err)
	assert.False(t, h.Absent)

	restored, err := s.LoadBytes("wf")
	require.NoError(t, err)
	assert.Equal(t, before, restored, "restore must be byte-exact")

	doc, err := s.Load("wf")
	require.NoError(t, err)
	assert.Equal(t, "good", doc.Nodes[0].Label)
}

func TestRestoreLatest_NoBackups(t *testing.T) {
	m, _, _ := testManager(t)
	_, err := m.RestoreLatest(context.Background(), "wf")
	assert.ErrorIs(t, err, ErrNoBackup)
}

func TestRestoreFrom_SpecificGeneration(t *testing.T) {
	m, s, clock := testManager(t)

	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v1")))
	clock.Advance(time.Second)
	_, err := m.Backup("wf")
	require.NoError(t, err)

	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v2")))
	clock.Advance(time.Second)
	_, err = m.Backup("wf")
	require.NoError(t, err)

	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v3")))

	handles, err := m.List("wf")
	require.NoError(t, err)
	require.Len(t, handles, 2)

	// Oldest generation holds v1.
	require.NoError(t, m.RestoreFrom(context.Background(), &handles[1]))
	doc, err := s.Load("wf")
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Nodes[0].Label)
}

func TestLookup(t *testing.T) {
	m, s, _ := testManager(t)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v1")))
	h, err := m.Backup("wf")
	require.NoError(t, err)

	found, err := m.Lookup("wf", h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, found.ID)

	_, err = m.Lookup("wf", "wf.20200101T000000.000000000.json")
	assert.ErrorIs(t, err, ErrUnknownGeneration)
}

func TestHash_MatchesGenerationBytes(t *testing.T) {
	m, s, _ := testManager(t)
	require.NoError(t, s.Commit(context.Background(), "wf", testDoc("v1")))
	data, err := s.LoadBytes("wf")
	require.NoError(t, err)

	h, err := m.Backup("wf")
	require.NoError(t, err)

	sum, err := m.Hash(h)
	require.NoError(t, err)
	assert.Equal(t, graph.HashBytes(data), sum)

	absent, err := m.Backup("other")
	require.NoError(t, err)
	sum, err = m.Hash(absent)
	require.NoError(t, err)
	assert.Empty(t, sum)
}

func TestList_UnknownNameIsEmpty(t *testing.T) {
	m, _, _ := testManager(t)
	handles, err := m.List("never-seen")
	require.NoError(t, err)
	assert.Empty(t, handles)
}
