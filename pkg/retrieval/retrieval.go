// Package retrieval is the entry point to the knowledge base. It embeds
// text, stores documents and answers similarity queries.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xhad/askgov/internal/models"
	"github.com/xhad/askgov/internal/types"
	"github.com/xhad/askgov/pkg/logger"
	"github.com/xhad/askgov/pkg/similarity"
)

const (
	DefaultTopK = 3

	DefaultFallbackMessage = "抱歉，您询问的问题目前不在我们的知识库中。建议您：\n1. 请前往政务大厅相关窗口现场咨询\n2. 拨打政务服务热线12345\n3. 在工作时间与人工客服联系"

	// labels used by List
	GroupAnswer   = "answer"
	GroupQuestion = "question"
	GroupOther    = "other"

	topScoreCount = 3
)

type Options struct {
	Threshold       float64
	TopK            int
	FallbackMessage string
	// NewID generates document ids. Defaults to random UUIDs.
	NewID func() string
}

type Service struct {
	embedder types.Embedder
	store    types.DocumentStore
	engine   *similarity.Engine
	opts     Options
}

// SearchResult is a query outcome with the diagnostics the admin tools show.
type SearchResult struct {
	Results   []models.ScoredDocument `json:"results"`
	Matched   int                     `json:"matched"`
	Total     int                     `json:"total"`
	TopScores []float64               `json:"topScores"`
	Fallback  bool                    `json:"fallback"`
}

// IngestReport counts the knowledge entries and documents added.
type IngestReport struct {
	Entries int `json:"entriesCount"`
	Added   int `json:"addedCount"`
}

func New(embedder types.Embedder, store types.DocumentStore, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = DefaultFallbackMessage
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}

	return &Service{
		embedder: embedder,
		store:    store,
		engine:   similarity.New(opts.Threshold),
		opts:     opts,
	}
}

func (s *Service) FallbackMessage() string {
	return s.opts.FallbackMessage
}

func (s *Service) DefaultTopK() int {
	return s.opts.TopK
}

// Ingest embeds content and appends it as a new document.
func (s *Service) Ingest(ctx context.Context, content string, meta models.Metadata) (models.Document, error) {
	if strings.TrimSpace(content) == "" {
		return models.Document{}, types.ErrEmptyContent
	}
	if !meta.Type.Valid() {
		return models.Document{}, fmt.Errorf("%w: %q", types.ErrInvalidType, meta.Type)
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return models.Document{}, err
	}

	doc := models.Document{
		ID:        s.opts.NewID(),
		Content:   content,
		Embedding: embedding,
		Metadata:  meta,
	}

	if err := s.store.Append(ctx, doc); err != nil {
		return models.Document{}, err
	}

	logger.Debug("ingested %s document %s", typeLabel(meta.Type), doc.ID)
	return doc, nil
}

// IngestEntries stores each entry as a question document followed by an
// answer document, both with the entry keywords. It stops at the first
// failure; the report says how much was added before it.
func (s *Service) IngestEntries(ctx context.Context, entries []models.KnowledgeEntry, progress func(added int)) (IngestReport, error) {
	report := IngestReport{Entries: len(entries)}

	for i, entry := range entries {
		parts := []struct {
			content string
			typ     models.DocType
		}{
			{entry.Question, models.TypeQuestion},
			{entry.Answer, models.TypeAnswer},
		}

		for _, part := range parts {
			meta := models.Metadata{Type: part.typ, Keywords: entry.Keywords}
			if _, err := s.Ingest(ctx, part.content, meta); err != nil {
				return report, fmt.Errorf("entry %d (%s): %w", i+1, part.typ, err)
			}
			report.Added++
			if progress != nil {
				progress(report.Added)
			}
		}
	}

	logger.Info("ingested %d entries (%d documents)", report.Entries, report.Added)
	return report, nil
}

// Search ranks the collection against text. When nothing clears the
// threshold, or the collection is empty, the result has Fallback set and
// carries the fallback message as its only result.
func (s *Service) Search(ctx context.Context, text string, topK int) (SearchResult, error) {
	if topK <= 0 {
		topK = s.opts.TopK
	}
	if strings.TrimSpace(text) == "" {
		return SearchResult{}, types.ErrEmptyContent
	}

	docs, err := s.store.Load(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	if len(docs) == 0 {
		logger.Debug("knowledge base is empty")
		return s.fallback(0, nil), nil
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return SearchResult{}, err
	}

	ranking, err := s.engine.Rank(queryVec, docs, topK)
	if errors.Is(err, types.ErrNoRelevantMatch) {
		logger.Debug("no document above threshold %.2f for %q", s.engine.Threshold, text)
		return s.fallback(len(docs), ranking.Candidates), nil
	}
	if err != nil {
		var scoringErr *types.ScoringError
		if errors.As(err, &scoringErr) {
			logger.Error("corrupt embedding in document %s: %d dimensions, query has %d",
				scoringErr.DocumentID, scoringErr.Got, scoringErr.Want)
		}
		return SearchResult{}, err
	}

	return SearchResult{
		Results:   ranking.Results,
		Matched:   ranking.Matched,
		Total:     len(docs),
		TopScores: topScores(ranking.Candidates),
	}, nil
}

// Query returns the content of the best matching documents in ranked
// order, or the fallback message alone.
func (s *Service) Query(ctx context.Context, text string, topK int) ([]string, error) {
	result, err := s.Search(ctx, text, topK)
	if err != nil {
		return nil, err
	}

	contents := make([]string, len(result.Results))
	for i, r := range result.Results {
		contents[i] = r.Content
	}
	return contents, nil
}

// Delete removes a document. Unknown ids are ignored.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	return s.store.Remove(ctx, id)
}

// List groups all documents by type, answers first. Empty groups are
// omitted.
func (s *Service) List(ctx context.Context) ([]models.DocumentGroup, error) {
	docs, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	order := []string{GroupAnswer, GroupQuestion, GroupOther}
	groups := make(map[string]*models.DocumentGroup, len(order))

	for _, doc := range docs {
		label := typeLabel(doc.Metadata.Type)
		g, ok := groups[label]
		if !ok {
			g = &models.DocumentGroup{Type: label, Items: []models.DocumentItem{}}
			groups[label] = g
		}

		keywords := doc.Metadata.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		g.Items = append(g.Items, models.DocumentItem{
			ID:       doc.ID,
			Content:  doc.Content,
			Keywords: keywords,
		})
		g.Count++
	}

	result := make([]models.DocumentGroup, 0, len(groups))
	for _, label := range order {
		if g, ok := groups[label]; ok {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (s *Service) fallback(total int, candidates []models.ScoredDocument) SearchResult {
	return SearchResult{
		Results:   []models.ScoredDocument{{Content: s.opts.FallbackMessage}},
		Total:     total,
		TopScores: topScores(candidates),
		Fallback:  true,
	}
}

func topScores(candidates []models.ScoredDocument) []float64 {
	n := min(len(candidates), topScoreCount)
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		scores[i] = candidates[i].Score
	}
	return scores
}

func typeLabel(t models.DocType) string {
	switch t {
	case models.TypeAnswer:
		return GroupAnswer
	case models.TypeQuestion:
		return GroupQuestion
	default:
		return GroupOther
	}
}
