package providers

import (
	"context"
	"errors"
	"fmt"

	llmpkg "github.com/forgehook/forgehostd/internal/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts the OpenAI-wire protocol (openaiwire.go) to
// api.openai.com directly, with an API key instead of Azure's resource
// endpoint + api-version.
type OpenAIProvider struct {
	client *openai.Client
	base   BaseProvider
}

// NewOpenAIProvider builds an OpenAIProvider. An empty apiKey yields a
// provider whose client is nil, so Complete reports a clear configuration
// error instead of the adapter never having been registered at all.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	p := &OpenAIProvider{base: NewBaseProvider("openai", 3)}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

func (p *OpenAIProvider) Name() string {
	return p.base.Name()
}

func (p *OpenAIProvider) Models() []llmpkg.Model {
	return []llmpkg.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385, SupportsVision: false},
		{ID: "gpt-4", Name: "GPT-4", ContextSize: 8192, SupportsVision: false},
	}
}

func (p *OpenAIProvider) SupportsTools() bool {
	return true
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *llmpkg.CompletionRequest) (<-chan *llmpkg.CompletionChunk, error) {
	if p.client == nil {
		return nil, NewProviderError("openai", req.Model, errors.New("OpenAI client not initialized (set llm.providers.openai.api_key)"))
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: openaiChatMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = openaiChatTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err := p.base.Retry(ctx, p.isRetryableError, func() error {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return p.wrapError(err, req.Model)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	chunks := make(chan *llmpkg.CompletionChunk)
	model := req.Model
	go streamOpenAIChat(ctx, stream, chunks, func(err error) error {
		return p.wrapError(err, model)
	})

	return chunks, nil
}

func (p *OpenAIProvider) isRetryableError(err error) bool {
	return isOpenAIRetryableError(err)
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	return wrapOpenAIError("openai", err, model)
}
