package analysis

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/config"
)

// OpenAIAnalyzer sends sanitized documents to an OpenAI-compatible chat API
type OpenAIAnalyzer struct {
	client *openai.Client
	config config.AnalysisConfig
	logger *zap.Logger
}

// NewOpenAIAnalyzer creates an analyzer. BaseURL may point at any
// OpenAI-compatible endpoint, including the /v1 suffix.
func NewOpenAIAnalyzer(cfg config.AnalysisConfig, logger *zap.Logger) *OpenAIAnalyzer {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIAnalyzer{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: logger,
	}
}

// Analyze sends a chat completion request
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	user := req.Text
	if req.Instructions != "" {
		user = req.Instructions + "\n\n---\n\n" + req.Text
	}

	chatReq := openai.ChatCompletionRequest{
		Model: a.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.config.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: a.config.MaxTokens,
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api call: no choices returned")
	}

	a.logger.Debug("Analysis completed",
		zap.String("document_ref", req.DocumentRef),
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens))

	return &Analysis{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
