package models

// DocType classifies a stored knowledge fragment.
type DocType string

const (
	TypeQuestion DocType = "question"
	TypeAnswer   DocType = "answer"
)

// Valid reports whether t is empty (untyped) or one of the known types.
func (t DocType) Valid() bool {
	return t == "" || t == TypeQuestion || t == TypeAnswer
}

type Metadata struct {
	Type     DocType  `json:"type,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Document is one persisted unit of knowledge. Documents are immutable once
// appended; the embedding is computed once at ingest time.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// ScoredDocument is a document matched against a query vector.
type ScoredDocument struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Type    DocType `json:"type,omitempty"`
}

// KnowledgeEntry is one question/answer pair parsed from a knowledge file.
type KnowledgeEntry struct {
	Keywords []string `json:"keywords"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
}

// Page is a fetched knowledge source.
type Page struct {
	URL         string
	Title       string
	Content     string
	ContentType string
	Depth       int
}

type DocumentItem struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// DocumentGroup is the admin view of all documents sharing a type.
// Embeddings are never part of it.
type DocumentGroup struct {
	Type  string         `json:"type"`
	Count int            `json:"count"`
	Items []DocumentItem `json:"items"`
}
