package providers

import (
	"context"
	"errors"
	"fmt"

	llmpkg "github.com/forgehook/forgehostd/internal/llm"
	openai "github.com/sashabaranov/go-openai"
)

// AzureOpenAIProvider adapts the OpenAI-wire protocol (openaiwire.go) to an
// Azure OpenAI Service deployment, which differs from direct OpenAI only in
// how the client is configured (resource endpoint + api-version query
// parameter instead of an api.openai.com bearer token) and in the fact that
// Model here names a deployment, not a model family.
type AzureOpenAIProvider struct {
	client       *openai.Client
	endpoint     string
	apiVersion   string
	defaultModel string
	base         BaseProvider
}

// AzureOpenAIConfig holds configuration for the Azure OpenAI provider.
type AzureOpenAIConfig struct {
	// Endpoint is the Azure OpenAI resource endpoint (required),
	// e.g. https://{resource-name}.openai.azure.com
	Endpoint string

	// APIKey is the Azure OpenAI API key (required).
	APIKey string

	// APIVersion is the API version to use (default: 2024-02-15-preview).
	APIVersion string

	// DefaultModel is the deployment name to use when a request doesn't
	// specify one.
	DefaultModel string

	// MaxRetries is the maximum attempts for transient failures (default: 3).
	MaxRetries int
}

func NewAzureOpenAIProvider(cfg AzureOpenAIConfig) (*AzureOpenAIProvider, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("azure: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("azure: API key is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-15-preview"
	}

	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	clientConfig.APIVersion = cfg.APIVersion

	return &AzureOpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		endpoint:     cfg.Endpoint,
		apiVersion:   cfg.APIVersion,
		defaultModel: cfg.DefaultModel,
		base:         NewBaseProvider("azure", cfg.MaxRetries),
	}, nil
}

func (p *AzureOpenAIProvider) Name() string {
	return p.base.Name()
}

// Models lists the deployment shapes forgehostd has seen operators name;
// Azure deployments are free-form so this is advisory, not authoritative.
func (p *AzureOpenAIProvider) Models() []llmpkg.Model {
	return []llmpkg.Model{
		{ID: "gpt-4o", Name: "GPT-4o (Azure)", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo (Azure)", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4", Name: "GPT-4 (Azure)", ContextSize: 8192, SupportsVision: false},
		{ID: "gpt-35-turbo", Name: "GPT-3.5 Turbo (Azure)", ContextSize: 16385, SupportsVision: false},
	}
}

func (p *AzureOpenAIProvider) SupportsTools() bool {
	return true
}

func (p *AzureOpenAIProvider) Complete(ctx context.Context, req *llmpkg.CompletionRequest) (<-chan *llmpkg.CompletionChunk, error) {
	if p.client == nil {
		return nil, NewProviderError("azure", req.Model, errors.New("azure OpenAI client not initialized (set llm.providers.azure.api_key/endpoint)"))
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return nil, NewProviderError("azure", "", errors.New("model/deployment name is required"))
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
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
			return p.wrapError(err, model)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("azure: %w", err)
	}

	chunks := make(chan *llmpkg.CompletionChunk)
	go streamOpenAIChat(ctx, stream, chunks, func(err error) error {
		return p.wrapError(err, model)
	})

	return chunks, nil
}

func (p *AzureOpenAIProvider) isRetryableError(err error) bool {
	return isOpenAIRetryableError(err)
}

func (p *AzureOpenAIProvider) wrapError(err error, model string) error {
	return wrapOpenAIError("azure", err, model)
}
