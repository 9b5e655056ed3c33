package explain

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"arbiter/internal/assessment"
)

const (
	maxTokens         = 512
	completionTimeout = 10 * time.Second
)

// OpenAI generates the narrative with a chat completion. Any failure falls
// back to the deterministic template so explanation never blocks or breaks
// an assessment.
type OpenAI struct {
	client   *openai.Client
	model    string
	fallback *Template
	logger   *slog.Logger
}

func NewOpenAI(client *openai.Client, model string, logger *slog.Logger) *OpenAI {
	return &OpenAI{
		client:   client,
		model:    model,
		fallback: NewTemplate(),
		logger:   logger,
	}
}

func (o *OpenAI) Explain(ctx context.Context, a *assessment.RiskAssessment) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(a)},
		},
	})
	if err != nil {
		o.logger.WarnContext(ctx, "chat completion failed, using template narrative",
			slog.String("request_id", a.RequestID.String()),
			slog.String("error", err.Error()))
		return o.fallback.Explain(ctx, a)
	}
	if len(resp.Choices) == 0 {
		return o.fallback.Explain(ctx, a)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return o.fallback.Explain(ctx, a)
	}
	return text, nil
}
