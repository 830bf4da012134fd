package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// OpenAIInvoker calls the OpenAI chat completions API. With a BaseURL it
// also serves openai-wire-compatible hosts (ollama, openrouter, groq), which
// is why a missing API key is only an error when no BaseURL is set.
type OpenAIInvoker struct {
	client *openai.Client
}

// NewOpenAIInvoker creates an invoker from provider configuration.
func NewOpenAIInvoker(cfg ProviderConfig) (*OpenAIInvoker, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}

	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}

	return &OpenAIInvoker{client: openai.NewClientWithConfig(conf)}, nil
}

// Invoke implements Invoker.
func (p *OpenAIInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Input,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Endpoint.Model(),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	start := time.Now()
	completion, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices for %s", req.Endpoint)
	}

	resp := &Response{
		Text:         completion.Choices[0].Message.Content,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
		Latency:      time.Since(start),
	}
	L_debug("llm: openai call completed", "endpoint", req.Endpoint,
		"inputTokens", resp.InputTokens, "outputTokens", resp.OutputTokens,
		"duration", resp.Latency.Round(time.Millisecond))
	return resp, nil
}
