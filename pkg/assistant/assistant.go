// Package assistant answers a spoken question from the knowledge base,
// optionally rewriting the retrieved knowledge with a text generator.
package assistant

import (
	"context"
	"strings"

	"github.com/xhad/askgov/internal/types"
	"github.com/xhad/askgov/pkg/llm"
	"github.com/xhad/askgov/pkg/logger"
)

const (
	DefaultApologyMessage = "抱歉，我暂时无法处理您的请求。请稍后再试。"

	answerPrefix = "根据知识库内容为您解答：\n\n"
)

// Searcher is the part of the retrieval service the assistant needs.
type Searcher interface {
	Query(ctx context.Context, text string, topK int) ([]string, error)
	FallbackMessage() string
}

type Config struct {
	TopK           int
	ApologyMessage string
}

type Assistant struct {
	searcher  Searcher
	generator types.Generator
	config    Config
}

type Reply struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Spoken   string   `json:"spoken"`
	Sources  []string `json:"sources"`
	// Fallback is set when nothing in the knowledge base matched.
	Fallback bool `json:"fallback"`
	// Generated is set when the answer came from the generator.
	Generated bool `json:"generated"`
}

// New creates an assistant. A nil generator answers with the retrieved
// knowledge directly.
func New(searcher Searcher, generator types.Generator, config Config) *Assistant {
	if config.TopK <= 0 {
		config.TopK = 3
	}
	if config.ApologyMessage == "" {
		config.ApologyMessage = DefaultApologyMessage
	}

	return &Assistant{
		searcher:  searcher,
		generator: generator,
		config:    config,
	}
}

// Ask answers utterance. Retrieval failures are returned as errors;
// generation failures become the apology message.
func (a *Assistant) Ask(ctx context.Context, utterance string) (Reply, error) {
	question := strings.TrimSpace(utterance)
	if question == "" {
		return Reply{}, types.ErrEmptyContent
	}

	results, err := a.searcher.Query(ctx, question, a.config.TopK)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Question: question, Sources: results}

	if len(results) == 0 || (len(results) == 1 && results[0] == a.searcher.FallbackMessage()) {
		reply.Sources = []string{}
		reply.Fallback = true
		reply.Answer = a.searcher.FallbackMessage()
		reply.Spoken = FirstParagraph(reply.Answer)
		return reply, nil
	}

	answer := strings.Join(results, "\n\n")

	if a.generator != nil {
		generated, err := a.generator.Generate(ctx, question, results)
		switch {
		case err != nil:
			logger.Error("generation failed: %v", err)
			answer = a.config.ApologyMessage
		case llm.StripReasoning(generated) != "":
			answer = llm.StripReasoning(generated)
			reply.Generated = true
		default:
			logger.Warn("generator returned an empty answer, using retrieved knowledge")
		}
	}

	reply.Answer = strings.TrimPrefix(answer, answerPrefix)
	reply.Spoken = FirstParagraph(reply.Answer)
	return reply, nil
}

// FirstParagraph returns text up to the first blank line.
func FirstParagraph(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "\n\n"); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return text
}
