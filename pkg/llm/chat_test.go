package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ChatConfig
		wantErr bool
	}{
		{name: "defaults", config: ChatConfig{}},
		{name: "custom", config: ChatConfig{Model: "qwen2", Temperature: 0.7, MaxTokens: 500}},
		{name: "temperature too high", config: ChatConfig{Temperature: 2.5}, wantErr: true},
		{name: "negative max tokens", config: ChatConfig{MaxTokens: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, err := NewWithConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, ce.config.MaxTokens)
			assert.NotEmpty(t, ce.config.SystemTemplate)
		})
	}
}

func TestMessages(t *testing.T) {
	ce, err := NewWithConfig(ChatConfig{
		SystemTemplate:  "system",
		ContextTemplate: "K:\n%s\nQ:%s",
	})
	require.NoError(t, err)

	msgs := ce.messages("怎么办身份证", []string{"答案一", "答案二"})
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)

	part, ok := msgs[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Equal(t, "K:\n答案一\n\n答案二\nQ:怎么办身份证", part.Text)
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<think>先想一想</think>\n\n请携带户口本", "请携带户口本"},
		{"<think>a\nb\nc</think>答<think>x</think>案", "答案"},
		{"  没有思考  ", "没有思考"},
		{"<think>unterminated", "<think>unterminated"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StripReasoning(tt.in))
	}
}
