package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/easyops/memflow-go/pkg/core/errors"
)

// OpenAIProvider 基于 OpenAI 兼容接口的能力提供者。
//
// 同时实现摘要、向量化和补全三种能力，支持通过 BaseURL
// 接入任何 OpenAI 兼容服务。
type OpenAIProvider struct {
	client *openai.Client
	opts   *Options
}

var _ Capability = (*OpenAIProvider)(nil)

// NewOpenAI 创建 OpenAI 能力提供者
func NewOpenAI(opts ...Option) (*OpenAIProvider, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.APIKey == "" {
		return nil, fmt.Errorf("%w: missing api key", errors.ErrCapabilityUnavailable)
	}

	cfg := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		cfg.BaseURL = options.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: options.Timeout}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		opts:   options,
	}, nil
}

// Summarize 将文本压缩到约 targetTokens 个 token
func (p *OpenAIProvider) Summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	if targetTokens <= 0 {
		return "", fmt.Errorf("%w: target tokens must be positive", errors.ErrInvalidInput)
	}

	prompt := fmt.Sprintf(
		"Compress the following text to at most %d tokens. Preserve facts, names, numbers and decisions. Output only the summary.\n\n%s",
		targetTokens, text,
	)

	var summary string
	err := retry(ctx, p.opts.MaxRetries, p.opts.RetryDelay, func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.opts.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens:   targetTokens + targetTokens/4,
			Temperature: p.opts.Temperature,
		})
		if err != nil {
			return mapOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		summary = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("summarize failed: %w", err)
	}
	return summary, nil
}

// Embed 批量计算文本向量
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	err := retry(ctx, p.opts.MaxRetries, p.opts.RetryDelay, func() error {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.opts.EmbeddingModel),
			Input: texts,
		})
		if err != nil {
			return mapOpenAIError(err)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
		}
		vectors = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	return vectors, nil
}

// Complete 单轮文本补全
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	var content string
	err := retry(ctx, p.opts.MaxRetries, p.opts.RetryDelay, func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.opts.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: p.opts.Temperature,
		})
		if err != nil {
			return mapOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("complete failed: %w", err)
	}
	return content, nil
}

// mapOpenAIError 将 API 错误映射为内部哨兵错误，供重试逻辑判定
func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errors.ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", errors.ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", errors.ErrTimeout, err)
		}
	}
	return err
}
