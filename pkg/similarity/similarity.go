// Package similarity ranks stored documents against a query vector.
//
// Ranking is a linear cosine scan: score every document, sort by score
// (stable, so insertion order breaks ties), drop everything below the
// threshold, then move answers ahead of questions ahead of untyped
// documents before truncating to topK.
package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/xhad/askgov/internal/models"
	"github.com/xhad/askgov/internal/types"
)

const DefaultThreshold = 0.6

// Cosine returns dot(a, b) / (|a| * |b|). A zero vector scores 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

type Engine struct {
	Threshold float64
}

func New(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{Threshold: threshold}
}

// Ranking is the outcome of scoring a collection.
type Ranking struct {
	// Results are the ranked documents, at most topK of them.
	Results []models.ScoredDocument
	// Matched counts documents at or above the threshold, before truncation.
	Matched int
	// Candidates holds every document in descending score order.
	Candidates []models.ScoredDocument
}

// Rank scores docs against query. It returns types.ErrNoRelevantMatch,
// together with the candidates, when nothing reaches the threshold, and a
// *types.ScoringError when a stored embedding has the wrong length.
func (e *Engine) Rank(query []float32, docs []models.Document, topK int) (Ranking, error) {
	if topK < 1 {
		return Ranking{}, types.ErrInvalidTopK
	}

	scored := make([]models.ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) != len(query) {
			return Ranking{}, &types.ScoringError{
				DocumentID: doc.ID,
				Want:       len(query),
				Got:        len(doc.Embedding),
			}
		}
		score, _ := Cosine(query, doc.Embedding)
		scored = append(scored, models.ScoredDocument{
			ID:      doc.ID,
			Content: doc.Content,
			Score:   score,
			Type:    doc.Metadata.Type,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	ranking := Ranking{Candidates: scored}

	var answers, questions, other []models.ScoredDocument
	for _, s := range scored {
		if s.Score < e.Threshold {
			continue
		}
		switch s.Type {
		case models.TypeAnswer:
			answers = append(answers, s)
		case models.TypeQuestion:
			questions = append(questions, s)
		default:
			other = append(other, s)
		}
	}

	ranking.Matched = len(answers) + len(questions) + len(other)
	if ranking.Matched == 0 {
		return ranking, types.ErrNoRelevantMatch
	}

	results := make([]models.ScoredDocument, 0, ranking.Matched)
	results = append(results, answers...)
	results = append(results, questions...)
	results = append(results, other...)
	if len(results) > topK {
		results = results[:topK]
	}
	ranking.Results = results

	return ranking, nil
}
