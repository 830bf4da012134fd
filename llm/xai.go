package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/roelfdiedericks/xai-go"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// XAIInvoker calls xAI's Grok API.
type XAIInvoker struct {
	client *xai.Client
}

// NewXAIInvoker creates an invoker from provider configuration.
func NewXAIInvoker(cfg ProviderConfig) (*XAIInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("xai API key not configured")
	}

	xaiCfg := xai.Config{
		APIKey: xai.NewSecureString(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		xaiCfg.Endpoint = cfg.BaseURL
	}

	client, err := xai.New(xaiCfg)
	if err != nil {
		return nil, fmt.Errorf("create xai client: %w", err)
	}
	return &XAIInvoker{client: client}, nil
}

// safeInt32 converts int to int32 with bounds checking to prevent overflow.
func safeInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < math.MinInt32 {
		return math.MinInt32
	}
	return int32(n)
}

// Invoke implements Invoker.
func (p *XAIInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	chatReq := xai.NewChatRequest().WithModel(req.Endpoint.Model())
	if req.MaxTokens > 0 {
		chatReq.WithMaxTokens(safeInt32(req.MaxTokens))
	}
	if req.System != "" {
		chatReq.SystemMessage(xai.SystemContent{Text: req.System})
	}
	chatReq.UserMessage(xai.UserContent{Text: req.Input})

	start := time.Now()
	completion, err := p.client.CompleteChat(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Text:         completion.Content,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		Latency:      time.Since(start),
	}
	L_debug("llm: xai call completed", "endpoint", req.Endpoint,
		"inputTokens", resp.InputTokens, "outputTokens", resp.OutputTokens,
		"duration", resp.Latency.Round(time.Millisecond))
	return resp, nil
}
