package causantic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/causantic/causantic/internal/archive"
	"github.com/causantic/causantic/internal/config"
	"github.com/causantic/causantic/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Store.DatabasePath = ""
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func seedChunk(t *testing.T, e *Engine, id, session, project, content string) {
	t.Helper()
	now := time.Now()
	c := &model.Chunk{
		ID:           id,
		SessionID:    session,
		ProjectSlug:  project,
		TurnIndices:  []int{0},
		StartTime:    now,
		EndTime:      now,
		Content:      content,
		ApproxTokens: 4,
		VectorClock:  model.VectorClock{"agent": 1},
		CreatedAt:    now,
	}
	require.NoError(t, e.chunks.Upsert(context.Background(), c))
	require.NoError(t, e.vectors.Add(context.Background(), []string{id}, [][]float32{staticEmbed(t, e, content)}))
}

func staticEmbed(t *testing.T, e *Engine, text string) []float32 {
	t.Helper()
	v, err := e.embedder.Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestNew_OpensStandaloneWithoutModelDownload(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e.embedder)
	require.True(t, e.embedder.Available(context.Background()))
}

func TestEngine_RecallFindsSeededChunk(t *testing.T) {
	e := newTestEngine(t)
	seedChunk(t, e, "c1", "s1", "proj-a", "fixing the race condition in the file watcher")

	resp, err := e.Recall(context.Background(), "race condition file watcher", RecallOptions{
		CommonQueryOptions: CommonQueryOptions{MaxTokens: 1000},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Chunks)
	require.Equal(t, "c1", resp.Chunks[0].ID)
}

func TestEngine_ListProjectsAndSessions(t *testing.T) {
	e := newTestEngine(t)
	seedChunk(t, e, "c1", "s1", "proj-a", "alpha")
	seedChunk(t, e, "c2", "s2", "proj-a", "beta")

	projects, err := e.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, "proj-a", projects[0].Slug)
	require.Equal(t, 2, projects[0].ChunkCount)

	sessions, err := e.ListSessions(context.Background(), "proj-a", SessionListOptions{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestEngine_ReconstructReplaysSession(t *testing.T) {
	e := newTestEngine(t)
	seedChunk(t, e, "c1", "s1", "proj-a", "first turn")
	seedChunk(t, e, "c2", "s1", "proj-a", "second turn")

	result, err := e.Reconstruct(context.Background(), ReconstructOptions{SessionID: "s1", MaxTokens: 1000})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
}

func TestEngine_ExportImportRoundTrips(t *testing.T) {
	src := newTestEngine(t)
	seedChunk(t, src, "c1", "s1", "proj-a", "exported content")

	data, err := src.Export(context.Background(), archive.ExportOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	dst := newTestEngine(t)
	report, err := dst.Import(context.Background(), data, archive.ImportOptions{Mode: archive.ModeMerge})
	require.NoError(t, err)
	require.Equal(t, 1, report.ChunksImported)

	got, err := dst.chunks.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "exported content", got.Content)
}
