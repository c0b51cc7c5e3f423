package relational

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.RelationalConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "primary.db"),
	}
	s, err := Open(context.Background(), cfg, logging.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storeResource(t *testing.T, s *Store, fileName string, texts []string) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	first, err := s.AllocateVectorIDs(ctx, tx, len(texts))
	require.NoError(t, err)

	resourceID, err := s.CreateResource(ctx, tx, fileName, TypeDocument)
	require.NoError(t, err)

	chunks := make([]ChunkInsert, len(texts))
	vectorIDs := make([]int64, len(texts))
	for i, text := range texts {
		vectorIDs[i] = first + int64(i)
		chunks[i] = ChunkInsert{Text: text, VectorID: vectorIDs[i], Position: i}
	}
	_, err = s.InsertChunks(ctx, tx, resourceID, chunks)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return resourceID, vectorIDs
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.VerifySchema(context.Background()))
}

func TestMigrateRefusesUnrecognizedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.db")
	cfg := config.RelationalConfig{Driver: "sqlite3", Path: path}

	s, err := Open(context.Background(), cfg, logging.NewNoopLogger())
	require.NoError(t, err)
	_, err = s.db.Exec(`DROP TABLE schema_migrations`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), cfg, logging.NewNoopLogger())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeSchema, apperrors.Code(err))
}

func TestAllocateVectorIDsMonotonicUnderConcurrency(t *testing.T) {
	s := newTestStore(t)

	const workers = 8
	const perWorker = 4
	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, vectorIDs := storeResource(t, s, "doc.md", []string{"a", "b", "c", "d"})
			for _, id := range vectorIDs {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	var min, max int64
	for id := range ids {
		assert.False(t, seen[id], "duplicate vector id %d", id)
		seen[id] = true
		if min == 0 || id < min {
			min = id
		}
		if id > max {
			max = id
		}
	}
	require.Len(t, seen, workers*perWorker)
	// Contiguous block: the allocator itself introduces no gaps.
	assert.Equal(t, int64(workers*perWorker), max-min+1)
}

func TestAllocationSurvivesRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	first, err := s.AllocateVectorIDs(ctx, tx, 3)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.AllocateVectorIDs(ctx, tx2, 5)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())

	next, err := s.AllocateVectorID(ctx)
	require.NoError(t, err)
	assert.Greater(t, next, first+2, "ids from the rolled back block must not be reissued as part of a fresh range")
}

func TestHydrateDropsMissingChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, vectorIDs := storeResource(t, s, "notes.md", []string{"alpha", "beta"})

	hydrated, err := s.ChunksByVectorIDs(ctx, append(vectorIDs, 999999))
	require.NoError(t, err)
	require.Len(t, hydrated, 2)
	assert.Equal(t, "notes.md", hydrated[0].FileName)
	assert.Equal(t, TypeDocument, hydrated[0].ResourceType)
}

func TestDeleteResourceCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resourceID, vectorIDs := storeResource(t, s, "doomed.md", []string{"x", "y"})

	msgID, err := s.InsertChatMessage(ctx, "c1", "assistant", "answer", "retrieve")
	require.NoError(t, err)
	chunks, err := s.ChunksByResource(ctx, resourceID)
	require.NoError(t, err)
	_, err = s.InsertContextLinks(ctx, msgID, []int64{chunks[0].ID})
	require.NoError(t, err)

	purged, err := s.DeleteResource(ctx, resourceID)
	require.NoError(t, err)
	assert.ElementsMatch(t, vectorIDs, purged)

	remaining, err := s.ChunksByResource(ctx, resourceID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	links, err := s.ContextLinksByMessage(ctx, msgID)
	require.NoError(t, err)
	assert.Empty(t, links)

	_, err = s.GetResource(ctx, resourceID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTodoLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateTodo(ctx, "write tests", "cover the stores", PriorityHigh)
	require.NoError(t, err)

	pending, err := s.ListTodos(ctx, TodoPending, "", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "write tests", pending[0].Title)

	require.NoError(t, s.CompleteTodo(ctx, id))
	todo, err := s.GetTodo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TodoCompleted, todo.Status)
	assert.True(t, todo.CompletedAt.Valid)

	err = s.CompleteTodo(ctx, id)
	assert.Equal(t, apperrors.ErrorCodeAlreadyExists, apperrors.Code(err))

	found, err := s.SearchTodos(ctx, "tests", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, s.DeleteTodo(ctx, id))
	assert.True(t, apperrors.IsNotFound(s.DeleteTodo(ctx, id)))
}

func TestCodePatternRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vectorID, err := s.AllocateVectorID(ctx)
	require.NoError(t, err)

	_, err = s.InsertCodePattern(ctx, PatternInsert{
		FunctionName:  "parseConfig",
		InputPrompt:   "parse the config file",
		GeneratedCode: "func parseConfig() {}",
		Result:        ResultPass,
		Tags:          []string{"go", "config"},
		VectorID:      vectorID,
	})
	require.NoError(t, err)

	patterns, err := s.PatternsByVectorIDs(ctx, []int64{vectorID})
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, []string{"go", "config"}, patterns[0].TagList())

	counts, err := s.PatternSuccessRate(ctx, "parseConfig")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[ResultPass])

	_, err = s.InsertCodePattern(ctx, PatternInsert{
		InputPrompt: "p", GeneratedCode: "c", Result: "maybe", VectorID: vectorID + 1,
	})
	assert.True(t, apperrors.IsValidationError(err))
}

func TestResourceLinkUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := storeResource(t, s, "a.md", []string{"one"})
	b, _ := storeResource(t, s, "b.md", []string{"two"})

	id1, err := s.UpsertResourceLink(ctx, a, b, "references", 0.5, "")
	require.NoError(t, err)
	id2, err := s.UpsertResourceLink(ctx, a, b, "references", 0.9, `{"via":"auto"}`)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	links, err := s.LinksForResource(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.InDelta(t, 0.9, links[0].Weight, 1e-9)

	_, err = s.UpsertResourceLink(ctx, a, a, "references", 1, "")
	assert.True(t, apperrors.IsValidationError(err))

	deleted, err := s.DeleteResourceLink(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, a, deleted.SourceResourceID)
	assert.Equal(t, "references", deleted.LinkType)

	_, err = s.DeleteResourceLink(ctx, id1)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestOrphanMarkAndRepair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, vectorIDs := storeResource(t, s, "o.md", []string{"text"})
	require.NoError(t, s.MarkChunkOrphaned(ctx, vectorIDs[0]))

	orphans, err := s.OrphanedChunks(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	require.NoError(t, s.MarkChunkRepaired(ctx, vectorIDs[0]))
	orphans, err = s.OrphanedChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestCollectStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	storeResource(t, s, "s.md", []string{"x", "y", "z"})
	_, err := s.InsertChatMessage(ctx, "c1", "user", "hi", "")
	require.NoError(t, err)

	stats, err := s.CollectStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Resources)
	assert.EqualValues(t, 3, stats.Chunks)
	assert.EqualValues(t, 1, stats.ChatMessages)
	assert.EqualValues(t, 3, stats.LastVectorID)
}
