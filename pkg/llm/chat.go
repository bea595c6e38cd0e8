package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/askgov/internal/types"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string // formatted with the joined knowledge, then the question
	BaseURL         string // Ollama server URL
	Timeout         time.Duration
}

// ChatEngine is an engine that uses an LLM to answer a question from
// retrieved knowledge.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

var _ types.Generator = (*ChatEngine)(nil)

var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	// Validate and set default values for config fields if necessary
	if config.Model == "" {
		config.Model = "deepseek-r1:14b" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "你是一个专业的政务服务助手。请直接回答用户问题，不要显示你的思考过程。"
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "知识库内容：\n%s\n\n用户问题：%s"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// Generate answers question using the retrieved knowledge fragments.
// Reasoning traces are removed from the reply.
func (ce *ChatEngine) Generate(ctx context.Context, question string, knowledge []string) (string, error) {
	if ce.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ce.config.Timeout)
		defer cancel()
	}

	response, err := ce.llm.GenerateContent(ctx, ce.messages(question, knowledge),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens))
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("chat error: no response from LLM")
	}

	return StripReasoning(response.Choices[0].Content), nil
}

func (ce *ChatEngine) messages(question string, knowledge []string) []llms.MessageContent {
	prompt := fmt.Sprintf(ce.config.ContextTemplate, strings.Join(knowledge, "\n\n"), question)

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
}

// StripReasoning removes <think>...</think> spans and surrounding whitespace.
func StripReasoning(text string) string {
	return strings.TrimSpace(thinkPattern.ReplaceAllString(text, ""))
}
