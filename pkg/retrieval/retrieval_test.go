package retrieval_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/askgov/internal/models"
	"github.com/xhad/askgov/internal/types"
	"github.com/xhad/askgov/pkg/logger"
	"github.com/xhad/askgov/pkg/retrieval"
	"github.com/xhad/askgov/pkg/store"
)

// fakeEmbedder returns fixed vectors for known texts and a vector derived
// from the text length otherwise.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   atomic.Int32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func newService(t *testing.T, emb *fakeEmbedder) (*retrieval.Service, *store.Collection) {
	t.Helper()
	c := store.NewCollection(store.NewMemoryBackend())
	var n atomic.Int32
	svc := retrieval.New(emb, c, retrieval.Options{
		Threshold: 0.6,
		NewID:     func() string { return fmt.Sprintf("id-%d", n.Add(1)) },
	})
	return svc, c
}

func TestQueryEmptyCollection(t *testing.T) {
	emb := &fakeEmbedder{}
	svc, _ := newService(t, emb)

	results, err := svc.Query(context.Background(), "身份证怎么办", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{retrieval.DefaultFallbackMessage}, results)
	assert.Equal(t, int32(0), emb.calls.Load())
}

func TestIngestAndQuery(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"如何办理身份证":       {0.9, 0.1, 0},
		"请携带户口本前往派出所办理": {0.8, 0.3, 0},
		"身份证怎么办":        {1, 0.2, 0},
		"今天天气怎么样":       {0, 0, 1},
	}}
	svc, _ := newService(t, emb)
	ctx := context.Background()

	keywords := []string{"身份证", "办理"}
	q, err := svc.Ingest(ctx, "如何办理身份证", models.Metadata{Type: models.TypeQuestion, Keywords: keywords})
	require.NoError(t, err)
	assert.Equal(t, "id-1", q.ID)
	assert.Equal(t, []float32{0.9, 0.1, 0}, q.Embedding)

	_, err = svc.Ingest(ctx, "请携带户口本前往派出所办理", models.Metadata{Type: models.TypeAnswer, Keywords: keywords})
	require.NoError(t, err)

	results, err := svc.Query(ctx, "身份证怎么办", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"请携带户口本前往派出所办理"}, results)

	results, err = svc.Query(ctx, "身份证怎么办", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"请携带户口本前往派出所办理", "如何办理身份证"}, results)

	results, err = svc.Query(ctx, "今天天气怎么样", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{retrieval.DefaultFallbackMessage}, results)
}

func TestIngestVerbatimQueryMatches(t *testing.T) {
	svc, _ := newService(t, &fakeEmbedder{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "社保卡补办流程", models.Metadata{Type: models.TypeAnswer})
	require.NoError(t, err)

	result, err := svc.Search(ctx, "社保卡补办流程", 3)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.False(t, result.Fallback)
	assert.InDelta(t, 1.0, result.Results[0].Score, 1e-6)
}

func TestIngestDeleteQuery(t *testing.T) {
	svc, c := newService(t, &fakeEmbedder{})
	ctx := context.Background()

	doc, err := svc.Ingest(ctx, "居住证办理", models.Metadata{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, doc.ID))
	require.NoError(t, svc.Delete(ctx, doc.ID))

	results, err := svc.Query(ctx, "居住证办理", 3)
	require.NoError(t, err)
	assert.NotContains(t, results, "居住证办理")

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Error(t, svc.Delete(ctx, ""))
}

func TestIngestValidation(t *testing.T) {
	emb := &fakeEmbedder{}
	svc, _ := newService(t, emb)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "   ", models.Metadata{})
	assert.ErrorIs(t, err, types.ErrEmptyContent)

	_, err = svc.Ingest(ctx, "x", models.Metadata{Type: "note"})
	assert.ErrorIs(t, err, types.ErrInvalidType)

	assert.Equal(t, int32(0), emb.calls.Load())
}

func TestEmbeddingFailurePropagates(t *testing.T) {
	svcErr := &types.EmbeddingServiceError{Op: "embed", Status: 500, Err: errors.New("boom")}
	emb := &fakeEmbedder{}
	svc, c := newService(t, emb)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "a", models.Metadata{})
	require.NoError(t, err)

	emb.err = svcErr
	_, err = svc.Ingest(ctx, "b", models.Metadata{})
	var target *types.EmbeddingServiceError
	assert.True(t, errors.As(err, &target))

	_, err = svc.Query(ctx, "a", 3)
	assert.True(t, errors.As(err, &target))

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearchDiagnostics(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"a":     {1, 0, 0},
		"b":     {0.5, 0.5, 0},
		"c":     {0, 1, 0},
		"d":     {0, 0, 1},
		"query": {0, 0, 1},
		"miss":  {-1, 0, 0},
	}}
	svc, _ := newService(t, emb)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c", "d"} {
		_, err := svc.Ingest(ctx, text, models.Metadata{})
		require.NoError(t, err)
	}

	result, err := svc.Search(ctx, "query", 0)
	require.NoError(t, err)
	assert.False(t, result.Fallback)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 1, result.Matched)
	require.Len(t, result.TopScores, 3)
	assert.InDelta(t, 1.0, result.TopScores[0], 1e-6)

	result, err = svc.Search(ctx, "miss", 0)
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, 4, result.Total)
	assert.Len(t, result.TopScores, 3)
	assert.Equal(t, svc.FallbackMessage(), result.Results[0].Content)
}

func TestScoringErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	backend := store.NewMemoryBackend(models.Document{ID: "bad", Content: "x", Embedding: []float32{1, 2}})
	svc := retrieval.New(&fakeEmbedder{}, store.NewCollection(backend), retrieval.Options{})

	_, err := svc.Query(context.Background(), "query", 3)
	var scoringErr *types.ScoringError
	require.True(t, errors.As(err, &scoringErr))
	assert.Contains(t, buf.String(), "document bad")
}

func TestIngestEntries(t *testing.T) {
	svc, c := newService(t, &fakeEmbedder{})
	ctx := context.Background()

	entries := []models.KnowledgeEntry{
		{Keywords: []string{"身份证"}, Question: "如何办理身份证", Answer: "请携带户口本"},
		{Keywords: []string{"社保"}, Question: "社保怎么交", Answer: "通过税务app缴纳"},
	}

	var progress []int
	report, err := svc.IngestEntries(ctx, entries, func(added int) { progress = append(progress, added) })
	require.NoError(t, err)
	assert.Equal(t, retrieval.IngestReport{Entries: 2, Added: 4}, report)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)

	docs, err := c.Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 4)
	assert.Equal(t, models.TypeQuestion, docs[0].Metadata.Type)
	assert.Equal(t, models.TypeAnswer, docs[1].Metadata.Type)
	assert.Equal(t, []string{"社保"}, docs[3].Metadata.Keywords)
}

func TestIngestEntriesStopsAtFirstFailure(t *testing.T) {
	svc, _ := newService(t, &fakeEmbedder{})

	entries := []models.KnowledgeEntry{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: " "},
		{Question: "q3", Answer: "a3"},
	}

	report, err := svc.IngestEntries(context.Background(), entries, nil)
	assert.ErrorIs(t, err, types.ErrEmptyContent)
	assert.Equal(t, 3, report.Entries)
	assert.Equal(t, 3, report.Added)
}

func TestList(t *testing.T) {
	svc, _ := newService(t, &fakeEmbedder{})
	ctx := context.Background()

	groups, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)

	_, err = svc.Ingest(ctx, "q", models.Metadata{Type: models.TypeQuestion, Keywords: []string{"k"}})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "untyped", models.Metadata{})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "a1", models.Metadata{Type: models.TypeAnswer})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "a2", models.Metadata{Type: models.TypeAnswer})
	require.NoError(t, err)

	groups, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, retrieval.GroupAnswer, groups[0].Type)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "a1", groups[0].Items[0].Content)
	assert.NotNil(t, groups[0].Items[0].Keywords)

	assert.Equal(t, retrieval.GroupQuestion, groups[1].Type)
	assert.Equal(t, []string{"k"}, groups[1].Items[0].Keywords)

	assert.Equal(t, retrieval.GroupOther, groups[2].Type)
	assert.Equal(t, 1, groups[2].Count)
}

func TestConcurrentIngest(t *testing.T) {
	svc, c := newService(t, &fakeEmbedder{})
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Ingest(ctx, fmt.Sprintf("document %d", i), models.Metadata{Type: models.TypeAnswer})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := svc.Query(ctx, "document", 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n2, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, n2)
}
