package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	llmpkg "github.com/forgehook/forgehostd/internal/llm"
)

// mockTool implements llmpkg.Tool for testing.
type mockTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (m *mockTool) Name() string           { return m.name }
func (m *mockTool) Description() string    { return m.description }
func (m *mockTool) Schema() json.RawMessage { return m.schema }

func (m *mockTool) Execute(ctx context.Context, params json.RawMessage) (*llmpkg.ToolResult, error) {
	return &llmpkg.ToolResult{Content: "test result"}, nil
}

func TestNewAnthropicProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      AnthropicConfig
		expectError bool
	}{
		{
			name: "valid config",
			config: AnthropicConfig{
				APIKey:       "test-key",
				MaxRetries:   3,
				DefaultModel: "claude-sonnet-4-20250514",
			},
			expectError: false,
		},
		{
			name:        "missing API key",
			config:      AnthropicConfig{MaxRetries: 3},
			expectError: true,
		},
		{
			name:        "defaults applied",
			config:      AnthropicConfig{APIKey: "test-key"},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewAnthropicProvider(tt.config)

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider == nil {
				t.Fatal("expected provider but got nil")
			}
			if provider.defaultModel == "" {
				t.Error("defaultModel should have default value")
			}
		})
	}
}

func TestProviderMethods(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	if provider.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got '%s'", provider.Name())
	}
	if !provider.SupportsTools() {
		t.Error("expected SupportsTools to return true")
	}

	models := provider.Models()
	if len(models) == 0 {
		t.Error("expected at least one model")
	}

	expectedModels := []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-sonnet-20241022",
	}

	modelIDs := make(map[string]bool)
	for _, m := range models {
		modelIDs[m.ID] = true
		if m.Name == "" {
			t.Errorf("model %s has empty name", m.ID)
		}
		if m.ContextSize <= 0 {
			t.Errorf("model %s has invalid context size", m.ID)
		}
	}

	for _, expected := range expectedModels {
		if !modelIDs[expected] {
			t.Errorf("expected model %s not found", expected)
		}
	}
}

func TestWrapAnthropicError(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	apiErr := &anthropic.Error{StatusCode: 429, RequestID: "req_123"}
	wrapped := provider.wrapError(apiErr, "claude-sonnet-4")
	providerErr, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatalf("expected ProviderError, got %T", wrapped)
	}
	if providerErr.Status != 429 {
		t.Fatalf("expected status 429, got %d", providerErr.Status)
	}
	if providerErr.Reason != FailureRateLimit {
		t.Fatalf("expected reason %v, got %v", FailureRateLimit, providerErr.Reason)
	}
	if providerErr.RequestID != "req_123" {
		t.Fatalf("expected request ID req_123, got %q", providerErr.RequestID)
	}
}

func TestConvertMessages(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tests := []struct {
		name     string
		messages []llmpkg.CompletionMessage
		wantErr  bool
	}{
		{
			name:     "simple user message",
			messages: []llmpkg.CompletionMessage{{Role: "user", Content: "Hello!"}},
		},
		{
			name: "system message is skipped",
			messages: []llmpkg.CompletionMessage{
				{Role: "system", Content: "You are helpful."},
				{Role: "user", Content: "Hello!"},
			},
		},
		{
			name: "assistant message",
			messages: []llmpkg.CompletionMessage{
				{Role: "user", Content: "Hello!"},
				{Role: "assistant", Content: "Hi there!"},
			},
		},
		{
			name: "message with tool calls",
			messages: []llmpkg.CompletionMessage{
				{
					Role:    "assistant",
					Content: "Let me check that.",
					ToolCalls: []llmpkg.ToolCall{
						{ID: "call_123", Name: "get_weather", Input: json.RawMessage(`{"city":"London"}`)},
					},
				},
			},
		},
		{
			name: "message with tool results",
			messages: []llmpkg.CompletionMessage{
				{
					Role: "user",
					ToolResults: []llmpkg.ToolResult{
						{ToolCallID: "call_123", Content: "Sunny, 72F", IsError: false},
					},
				},
			},
		},
		{
			name: "message with image attachment",
			messages: []llmpkg.CompletionMessage{
				{
					Role:    "user",
					Content: "What's in this image?",
					Attachments: []llmpkg.Attachment{
						{Type: "image", MimeType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47}},
					},
				},
			},
		},
		{
			name: "invalid tool call JSON",
			messages: []llmpkg.CompletionMessage{
				{
					Role: "assistant",
					ToolCalls: []llmpkg.ToolCall{
						{ID: "call_123", Name: "test", Input: json.RawMessage(`invalid json`)},
					},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := provider.convertMessages(tt.messages)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result == nil {
				t.Fatal("expected result but got nil")
			}
		})
	}
}

func TestConvertTools(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tests := []struct {
		name    string
		tools   []llmpkg.Tool
		wantErr bool
	}{
		{
			name: "valid tool",
			tools: []llmpkg.Tool{
				&mockTool{name: "get_weather", description: "Get current weather", schema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)},
			},
		},
		{
			name: "multiple tools",
			tools: []llmpkg.Tool{
				&mockTool{name: "get_weather", description: "Get current weather", schema: json.RawMessage(`{"type":"object"}`)},
				&mockTool{name: "search", description: "Search the web", schema: json.RawMessage(`{"type":"object"}`)},
			},
		},
		{
			name: "invalid schema JSON",
			tools: []llmpkg.Tool{
				&mockTool{name: "test", description: "Test tool", schema: json.RawMessage(`invalid`)},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := provider.convertTools(tt.tools)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.tools) {
				t.Errorf("expected %d tools, got %d", len(tt.tools), len(result))
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tests := []struct {
		name  string
		err   error
		retry bool
	}{
		{"nil error", nil, false},
		{"rate limit error", errors.New("rate_limit exceeded"), true},
		{"429 status", errors.New("HTTP 429 too many requests"), true},
		{"500 error", errors.New("HTTP 500 internal server error"), true},
		{"503 service unavailable", errors.New("503 service unavailable"), true},
		{"timeout error", errors.New("request timeout"), true},
		{"deadline exceeded", errors.New("context deadline exceeded"), true},
		{"invalid API key (not retryable)", errors.New("invalid API key"), false},
		{"validation error (not retryable)", errors.New("validation failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := provider.isRetryableError(tt.err)
			if result != tt.retry {
				t.Errorf("expected retry=%v, got %v for error: %v", tt.retry, result, tt.err)
			}
		})
	}
}

func TestModelDefaults(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", DefaultModel: "claude-opus-4-20250514"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	if model := provider.getModel(""); model != "claude-opus-4-20250514" {
		t.Errorf("expected default model, got %s", model)
	}
	if model := provider.getModel("claude-3-haiku-20240307"); model != "claude-3-haiku-20240307" {
		t.Errorf("expected specified model, got %s", model)
	}
	if maxTokens := provider.getMaxTokens(0); maxTokens != 4096 {
		t.Errorf("expected default maxTokens=4096, got %d", maxTokens)
	}
	if maxTokens := provider.getMaxTokens(2000); maxTokens != 2000 {
		t.Errorf("expected specified maxTokens=2000, got %d", maxTokens)
	}
}

func TestMaxEmptyStreamEventsConstant(t *testing.T) {
	if maxEmptyStreamEvents < 100 {
		t.Errorf("maxEmptyStreamEvents=%d is too low, may cause false positives", maxEmptyStreamEvents)
	}
	if maxEmptyStreamEvents > 1000 {
		t.Errorf("maxEmptyStreamEvents=%d is too high, may not protect against malformed streams", maxEmptyStreamEvents)
	}
}

func TestAnthropicProviderWithBaseURL(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: "https://custom.api.example.com/"})
	if err != nil {
		t.Fatalf("failed to create provider with base URL: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider but got nil")
	}
}

func TestAnthropicProviderWithEmptyBaseURL(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: "   "})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider but got nil")
	}
}

func TestConvertMessagesWithMultipleToolCalls(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	messages := []llmpkg.CompletionMessage{
		{
			Role:    "assistant",
			Content: "I'll help you with both.",
			ToolCalls: []llmpkg.ToolCall{
				{ID: "call_1", Name: "get_weather", Input: json.RawMessage(`{"city":"London"}`)},
				{ID: "call_2", Name: "search", Input: json.RawMessage(`{"query":"news"}`)},
			},
		},
	}

	result, err := provider.convertMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 message, got %d", len(result))
	}
}

func TestConvertMessagesWithMultipleToolResults(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	messages := []llmpkg.CompletionMessage{
		{
			Role: "user",
			ToolResults: []llmpkg.ToolResult{
				{ToolCallID: "call_1", Content: "Sunny, 72F"},
				{ToolCallID: "call_2", Content: "Top news: ..."},
			},
		},
	}

	result, err := provider.convertMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 message, got %d", len(result))
	}
}

func TestConvertMessagesWithToolResultError(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	messages := []llmpkg.CompletionMessage{
		{
			Role: "user",
			ToolResults: []llmpkg.ToolResult{
				{ToolCallID: "call_1", Content: "Network error occurred", IsError: true},
			},
		},
	}

	result, err := provider.convertMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 message, got %d", len(result))
	}
}

func TestConvertToolsWithComplexSchema(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tools := []llmpkg.Tool{
		&mockTool{
			name:        "complex_tool",
			description: "A tool with complex schema",
			schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search query"},
					"filters": {"type": "object", "properties": {"date": {"type": "string"}, "limit": {"type": "integer"}}},
					"options": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["query"]
			}`),
		},
	}

	result, err := provider.convertTools(tools)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 tool, got %d", len(result))
	}
}

func TestIsRetryableWithProviderError(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	rateLimitErr := NewProviderError("anthropic", "claude-sonnet", errors.New("rate limit")).WithStatus(429)
	if !provider.isRetryableError(rateLimitErr) {
		t.Error("expected rate limit ProviderError to be retryable")
	}

	authErr := NewProviderError("anthropic", "claude-sonnet", errors.New("unauthorized")).WithStatus(401)
	if provider.isRetryableError(authErr) {
		t.Error("expected auth ProviderError to not be retryable")
	}
}

func TestWrapErrorNil(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	if result := provider.wrapError(nil, "claude-sonnet"); result != nil {
		t.Errorf("expected nil for nil error, got %v", result)
	}
}

func TestWrapErrorAlreadyWrapped(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	originalErr := NewProviderError("anthropic", "claude-sonnet", errors.New("test")).WithStatus(429).WithCode("rate_limit")
	wrapped := provider.wrapError(originalErr, "different-model")
	if wrapped != originalErr {
		t.Error("expected already-wrapped error to be returned as-is")
	}
}

func TestWrapErrorExtractsRequestID(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	apiErr := &anthropic.Error{StatusCode: 500, RequestID: "req_test_123"}
	wrapped := provider.wrapError(apiErr, "claude-sonnet")
	providerErr, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatal("expected ProviderError")
	}
	if providerErr.RequestID != "req_test_123" {
		t.Errorf("expected request ID req_test_123, got %s", providerErr.RequestID)
	}
}

func TestGetMaxTokensEdgeCases(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"zero", 0, 4096},
		{"negative", -100, 4096},
		{"positive", 2000, 2000},
		{"large", 100000, 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := provider.getMaxTokens(tt.input); result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestConvertMessagesEmptyContent(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	messages := []llmpkg.CompletionMessage{
		{
			Role:      "assistant",
			Content:   "",
			ToolCalls: []llmpkg.ToolCall{{ID: "call_1", Name: "test", Input: json.RawMessage(`{}`)}},
		},
	}

	result, err := provider.convertMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 message, got %d", len(result))
	}
}

func TestModelVisionSupport(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	for _, m := range provider.Models() {
		if !m.SupportsVision {
			t.Errorf("model %s should support vision", m.ID)
		}
	}
}

func TestModelContextSizes(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	for _, m := range provider.Models() {
		if m.ContextSize != 200000 {
			t.Errorf("model %s has unexpected context size %d", m.ID, m.ContextSize)
		}
	}
}

func TestIsRetryableWithServerErrors(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	for _, errMsg := range []string{"internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if !provider.isRetryableError(errors.New(errMsg)) {
			t.Errorf("expected %q to be retryable", errMsg)
		}
	}
}

func TestIsRetryableWithConnectionErrors(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	for _, errMsg := range []string{"connection reset", "connection refused", "no such host"} {
		if !provider.isRetryableError(errors.New(errMsg)) {
			t.Errorf("expected %q to be retryable", errMsg)
		}
	}
}

func TestImageBlockFromAttachmentDataURL(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})
	att := llmpkg.Attachment{Type: "image", URL: "data:image/jpeg;base64," + raw}

	block := imageBlockFromAttachment(att)
	if block == nil {
		t.Fatal("expected image block, got nil")
	}
	if block.Source.OfBase64 == nil {
		t.Fatal("expected base64 source for a data: URL")
	}
	if block.Source.OfBase64.Data != raw {
		t.Errorf("expected data %q, got %q", raw, block.Source.OfBase64.Data)
	}
}

func TestImageBlockFromAttachmentRawData(t *testing.T) {
	att := llmpkg.Attachment{Type: "image", MimeType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47}}

	block := imageBlockFromAttachment(att)
	if block == nil {
		t.Fatal("expected image block, got nil")
	}
	if block.Source.OfBase64 == nil {
		t.Fatal("expected base64 source for raw Data")
	}
	want := base64.StdEncoding.EncodeToString(att.Data)
	if block.Source.OfBase64.Data != want {
		t.Errorf("expected data %q, got %q", want, block.Source.OfBase64.Data)
	}
}

func TestImageBlockFromAttachmentURL(t *testing.T) {
	att := llmpkg.Attachment{Type: "image", URL: "https://example.com/image.jpg"}

	block := imageBlockFromAttachment(att)
	if block == nil {
		t.Fatal("expected image block, got nil")
	}
	if block.Source.OfURL == nil || block.Source.OfURL.URL != att.URL {
		t.Errorf("expected URL source pointing at %q", att.URL)
	}
}

func TestParseDataURL(t *testing.T) {
	mediaType, data, ok := parseDataURL("data:image/png;base64,QUJD")
	if !ok {
		t.Fatal("expected ok for a valid data URL")
	}
	if mediaType != "image/png" || data != "QUJD" {
		t.Errorf("unexpected parse result: %q %q", mediaType, data)
	}

	if _, _, ok := parseDataURL("https://example.com/image.jpg"); ok {
		t.Error("expected ok=false for a non-data URL")
	}
}
