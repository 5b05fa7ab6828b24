package integrity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphkeep/graphkeep/internal/backup"
	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/storage"
	"github.com/graphkeep/graphkeep/internal/testutil"
)

var checkTime = time.Date(2026, 4, 5, 6, 7, 8, 0, time.UTC)

func testChecker(t *testing.T) (*Checker, *storage.Store, *backup.Manager) {
	t.Helper()
	clock := testutil.NewClock(checkTime)
	s, err := storage.Open(t.TempDir(), storage.WithClock(clock.Now))
	require.NoError(t, err)
	m, err := backup.NewManager(s, t.TempDir(), backup.WithClock(clock.Now))
	require.NoError(t, err)
	return NewChecker(s, m), s, m
}

func cleanDoc() *graph.Document {
	doc := graph.NewDocument(checkTime)
	doc.Nodes = append(doc.Nodes,
		graph.Node{ID: "n1", Type: graph.TypeEntity, Label: "auth service", Confidence: 0.9, Evidence: "deploy logs"},
		graph.Node{ID: "n2", Type: graph.TypeFinding, Label: "latency regression", Confidence: 0.5},
	)
	doc.Edges = append(doc.Edges,
		graph.Edge{Source: "n1", Target: "n2", Relation: "exhibits"},
	)
	return doc
}

func TestCheck_CleanDocument(t *testing.T) {
	c, s, _ := testChecker(t)
	require.NoError(t, s.Commit(context.Background(), "wf", cleanDoc()))

	res, err := c.Check("wf")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Issues)
	assert.True(t, res.Repairable())
}

func TestCheck_NotFound(t *testing.T) {
	c, _, _ := testChecker(t)
	_, err := c.Check("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheck_Unparsable(t *testing.T) {
	c, s, _ := testChecker(t)
	require.NoError(t, os.WriteFile(s.Path("broken"), []byte(`{"nodes": [`), 0o644))

	res, err := c.Check("broken")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueUnparsable, res.Issues[0].Kind)
	assert.False(t, res.Repairable())
}

func TestCheck_DanglingEdgeClassifiedTwice(t *testing.T) {
	c, s, _ := testChecker(t)
	doc := cleanDoc()
	doc.Edges = append(doc.Edges, graph.Edge{Source: "n1", Target: "ghost", Relation: "supports"})
	require.NoError(t, s.Commit(context.Background(), "wf", doc))

	res, err := c.Check("wf")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 2)

	assert.Equal(t, IssueSchema, res.Issues[0].Kind)
	assert.Equal(t, "edges", res.Issues[0].Field)

	assert.Equal(t, IssueDanglingEdge, res.Issues[1].Kind)
	assert.Equal(t, "n1", res.Issues[1].Source)
	assert.Equal(t, "ghost", res.Issues[1].Target)

	assert.True(t, res.Repairable())
}

func TestCheck_SchemaIssueNotRepairable(t *testing.T) {
	c, s, _ := testChecker(t)
	doc := cleanDoc()
	doc.Nodes[1].Confidence = 1.5
	require.NoError(t, s.Commit(context.Background(), "wf", doc))

	res, err := c.Check("wf")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueSchema, res.Issues[0].Kind)
	assert.Equal(t, "confidence", res.Issues[0].Field)
	assert.False(t, res.Repairable())
}

func TestRepair_RemovesOnlyDanglingEdges(t *testing.T) {
	c, s, m := testChecker(t)
	doc := cleanDoc()
	doc.Edges = append(doc.Edges, graph.Edge{Source: "n1", Target: "ghost", Relation: "supports"})
	require.NoError(t, s.Commit(context.Background(), "wf", doc))

	res, err := c.Repair(context.Background(), "wf")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.ActionsTaken, 2)
	assert.Contains(t, res.ActionsTaken[0], "backed up")
	assert.Contains(t, res.ActionsTaken[1], `"ghost"`)

	repaired, err := s.Load("wf")
	require.NoError(t, err)
	require.Len(t, repaired.Edges, 1)
	assert.Equal(t, "n2", repaired.Edges[0].Target)
	assert.Len(t, repaired.Nodes, 2, "nodes are never dropped by repair")
	assert.Equal(t, 1, repaired.Meta.EdgeCount)

	// Pre-repair state is retained as a generation.
	handles, err := m.List("wf")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.False(t, handles[0].Absent)

	after, err := c.Check("wf")
	require.NoError(t, err)
	assert.True(t, after.Valid)
}

func TestRepair_CleanDocumentIsNoOp(t *testing.T) {
	c, s, m := testChecker(t)
	require.NoError(t, s.Commit(context.Background(), "wf", cleanDoc()))
	before, err := s.LoadBytes("wf")
	require.NoError(t, err)

	res, err := c.Repair(context.Background(), "wf")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.ActionsTaken, 1)
	assert.Contains(t, res.ActionsTaken[0], "no repairable issues")

	after, err := s.LoadBytes("wf")
	require.NoError(t, err)
	assert.Equal(t, before, after, "no-op repair must not rewrite the document")

	handles, err := m.List("wf")
	require.NoError(t, err)
	assert.Empty(t, handles, "no-op repair must not create a backup")
}

func TestRepair_Unparsable(t *testing.T) {
	c, s, _ := testChecker(t)
	require.NoError(t, os.WriteFile(s.Path("broken"), []byte(`not json`), 0o644))

	res, err := c.Repair(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.ActionsTaken, 1)
	assert.Contains(t, res.ActionsTaken[0], "restore a backup generation")
}

// Making the backup root unwritable forces Backup to fail while the
// live document stays readable.
func TestRepair_AbortsWhenBackupFails(t *testing.T) {
	clock := testutil.NewClock(checkTime)
	s, err := storage.Open(t.TempDir(), storage.WithClock(clock.Now))
	require.NoError(t, err)

	backupRoot := t.TempDir()
	m, err := backup.NewManager(s, backupRoot, backup.WithClock(clock.Now))
	require.NoError(t, err)
	c := NewChecker(s, m)

	doc := cleanDoc()
	doc.Edges = append(doc.Edges, graph.Edge{Source: "n1", Target: "ghost", Relation: "supports"})
	require.NoError(t, s.Commit(context.Background(), "wf", doc))
	before, err := s.LoadBytes("wf")
	require.NoError(t, err)

	require.NoError(t, os.Chmod(backupRoot, 0o555))
	t.Cleanup(func() { os.Chmod(backupRoot, 0o755) })

	res, err := c.Repair(context.Background(), "wf")
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.ActionsTaken, 1)
	assert.Contains(t, res.ActionsTaken[0], "backup failed")

	after, err := s.LoadBytes("wf")
	require.NoError(t, err)
	assert.Equal(t, before, after, "aborted repair must not write")
}

func TestCheckAll_IsolatesFailures(t *testing.T) {
	c, s, _ := testChecker(t)
	require.NoError(t, s.Commit(context.Background(), "alpha", cleanDoc()))
	require.NoError(t, os.WriteFile(s.Path("broken"), []byte(`{{`), 0o644))
	require.NoError(t, s.Commit(context.Background(), "zeta", cleanDoc()))

	results, err := c.CheckAll()
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := make(map[string]CheckResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.True(t, byName["alpha"].Valid)
	assert.True(t, byName["zeta"].Valid)
	assert.False(t, byName["broken"].Valid)
	assert.Equal(t, IssueUnparsable, byName["broken"].Issues[0].Kind)
}

func TestRepairAll(t *testing.T) {
	c, s, _ := testChecker(t)
	require.NoError(t, s.Commit(context.Background(), "clean", cleanDoc()))

	dirty := cleanDoc()
	dirty.Edges = append(dirty.Edges, graph.Edge{Source: "ghost", Target: "n1", Relation: "haunts"})
	require.NoError(t, s.Commit(context.Background(), "dirty", dirty))

	results, err := c.RepairAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.True(t, r.Success, r.Name)
	}

	doc, err := s.Load("dirty")
	require.NoError(t, err)
	assert.Len(t, doc.Edges, 1)
}
