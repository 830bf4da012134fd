package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

const defaultAnthropicMaxTokens = 8192

// AnthropicInvoker calls the Anthropic Messages API.
type AnthropicInvoker struct {
	client anthropic.Client
}

// NewAnthropicInvoker creates an invoker from provider configuration.
// Supports custom BaseURL for Anthropic-compatible APIs.
func NewAnthropicInvoker(cfg ProviderConfig) (*AnthropicInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicInvoker{client: anthropic.NewClient(opts...)}, nil
}

// Invoke implements Invoker.
func (p *AnthropicInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Endpoint.Model()),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	resp := &Response{
		Text:         text.String(),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
		Latency:      time.Since(start),
	}
	L_debug("llm: anthropic call completed", "endpoint", req.Endpoint,
		"inputTokens", resp.InputTokens, "outputTokens", resp.OutputTokens,
		"duration", resp.Latency.Round(time.Millisecond))
	return resp, nil
}
