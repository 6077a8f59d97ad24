package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	llmpkg "github.com/forgehook/forgehostd/internal/llm"
	openai "github.com/sashabaranov/go-openai"
)

func TestOpenAIChatMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []llmpkg.CompletionMessage
		system   string
		wantLen  int
	}{
		{
			name: "basic text messages",
			messages: []llmpkg.CompletionMessage{
				{Role: "user", Content: "Hello"},
				{Role: "assistant", Content: "Hi there!"},
			},
			system:  "You are a helpful assistant",
			wantLen: 3, // system + 2 messages
		},
		{
			name: "message with tool calls",
			messages: []llmpkg.CompletionMessage{
				{Role: "user", Content: "What's the weather?"},
				{
					Role: "assistant",
					ToolCalls: []llmpkg.ToolCall{
						{ID: "call_123", Name: "get_weather", Input: json.RawMessage(`{"location":"NYC"}`)},
					},
				},
			},
			wantLen: 2,
		},
		{
			name: "message with tool results",
			messages: []llmpkg.CompletionMessage{
				{
					Role: "tool",
					ToolResults: []llmpkg.ToolResult{
						{ToolCallID: "call_123", Content: "Sunny, 72F"},
					},
				},
			},
			wantLen: 1,
		},
		{
			name: "message with image attachment (vision)",
			messages: []llmpkg.CompletionMessage{
				{
					Role:    "user",
					Content: "What's in this image?",
					Attachments: []llmpkg.Attachment{
						{ID: "img_1", Type: "image", URL: "https://example.com/image.jpg", MimeType: "image/jpeg"},
					},
				},
			},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := openaiChatMessages(tt.messages, tt.system)
			if len(got) != tt.wantLen {
				t.Errorf("openaiChatMessages() got %d messages, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestOpenAIChatMessagesMultipleImages(t *testing.T) {
	messages := []llmpkg.CompletionMessage{
		{
			Role:    "user",
			Content: "Compare these images",
			Attachments: []llmpkg.Attachment{
				{ID: "img_1", Type: "image", URL: "https://example.com/image1.jpg"},
				{ID: "img_2", Type: "image", URL: "https://example.com/image2.jpg"},
			},
		},
	}

	got := openaiChatMessages(messages, "")
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if len(got[0].MultiContent) != 3 { // text + 2 images
		t.Errorf("expected 3 content parts, got %d", len(got[0].MultiContent))
	}
}

func TestOpenAIChatMessagesBase64Attachment(t *testing.T) {
	messages := []llmpkg.CompletionMessage{
		{
			Role: "user",
			Attachments: []llmpkg.Attachment{
				{Type: "image", MimeType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47}},
			},
		},
	}

	got := openaiChatMessages(messages, "")
	if len(got) != 1 || len(got[0].MultiContent) != 1 {
		t.Fatalf("expected 1 message with 1 content part, got %+v", got)
	}
	part := got[0].MultiContent[0]
	if part.Type != openai.ChatMessagePartTypeImageURL {
		t.Fatalf("expected image part, got %v", part.Type)
	}
	if part.ImageURL == nil || len(part.ImageURL.URL) == 0 {
		t.Fatalf("expected data URL to be populated")
	}
}

func TestOpenAIChatTools(t *testing.T) {
	mockTool := &openaiMockTool{
		name:        "test_tool",
		description: "A test tool",
		schema:      json.RawMessage(`{"type":"object","properties":{"arg":{"type":"string"}}}`),
	}

	got := openaiChatTools([]llmpkg.Tool{mockTool})
	if len(got) != 1 {
		t.Fatalf("openaiChatTools() got %d tools, want 1", len(got))
	}
	if got[0].Function.Name != "test_tool" {
		t.Errorf("openaiChatTools() name = %v, want test_tool", got[0].Function.Name)
	}
}

func TestOpenAIWrapError(t *testing.T) {
	provider := &OpenAIProvider{}

	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "rate limit exceeded", Code: "rate_limit_error"}
	wrapped := provider.wrapError(apiErr, "gpt-4o")
	providerErr, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatalf("expected ProviderError, got %T", wrapped)
	}
	if providerErr.Status != 429 {
		t.Fatalf("expected status 429, got %d", providerErr.Status)
	}
	if providerErr.Reason != FailureRateLimit {
		t.Fatalf("expected status-classified reason %v, got %v", FailureRateLimit, providerErr.Reason)
	}
	if providerErr.Code != "rate_limit_error" {
		t.Fatalf("expected code rate_limit_error, got %q", providerErr.Code)
	}

	reqErr := &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("upstream unavailable")}
	wrapped = provider.wrapError(reqErr, "gpt-4o")
	if _, ok := GetProviderError(wrapped); !ok {
		t.Fatalf("expected ProviderError, got %T", wrapped)
	}
}

func TestOpenAIProviderName(t *testing.T) {
	provider := NewOpenAIProvider("")
	if got := provider.Name(); got != "openai" {
		t.Errorf("Name() = %v, want openai", got)
	}
}

func TestOpenAIProviderSupportsTools(t *testing.T) {
	provider := NewOpenAIProvider("")
	if !provider.SupportsTools() {
		t.Error("SupportsTools() = false, want true")
	}
}

func TestOpenAIProviderModels(t *testing.T) {
	provider := NewOpenAIProvider("")
	models := provider.Models()

	if len(models) == 0 {
		t.Error("Models() returned empty list")
	}

	modelNames := make(map[string]bool)
	for _, m := range models {
		modelNames[m.ID] = true
	}

	for _, expected := range []string{"gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"} {
		if !modelNames[expected] {
			t.Errorf("Models() missing expected model: %s", expected)
		}
	}
}

func TestOpenAICompleteMissingAPIKey(t *testing.T) {
	provider := NewOpenAIProvider("")
	req := &llmpkg.CompletionRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []llmpkg.CompletionMessage{{Role: "user", Content: "Hello"}},
	}

	if _, err := provider.Complete(context.Background(), req); err == nil {
		t.Error("Complete() with no API key configured should return an error")
	}
}

func TestOpenAIRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"rate limit error", errors.New("rate limit exceeded"), true},
		{"429 status", errors.New("HTTP 429"), true},
		{"500 server error", errors.New("HTTP 500"), true},
		{"timeout", errors.New("timeout exceeded"), true},
		{"invalid API key", errors.New("invalid API key"), false},
		{"no error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOpenAIRetryableError(tt.err); got != tt.wantRetry {
				t.Errorf("isOpenAIRetryableError() = %v, want %v", got, tt.wantRetry)
			}
		})
	}
}

func TestOpenAIVisionModels(t *testing.T) {
	provider := NewOpenAIProvider("")
	models := provider.Models()

	visionModels := 0
	for _, m := range models {
		if m.SupportsVision {
			visionModels++
		}
	}
	if visionModels == 0 {
		t.Error("No models with vision support found")
	}
	for _, m := range models {
		if (m.ID == "gpt-4o" || m.ID == "gpt-4-turbo") && !m.SupportsVision {
			t.Errorf("Model %s should support vision", m.ID)
		}
	}
}

// openaiMockTool is a minimal llmpkg.Tool used across this package's tests.
type openaiMockTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (m *openaiMockTool) Name() string           { return m.name }
func (m *openaiMockTool) Description() string    { return m.description }
func (m *openaiMockTool) Schema() json.RawMessage { return m.schema }
