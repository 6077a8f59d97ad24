package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	llmpkg "github.com/forgehook/forgehostd/internal/llm"
	"github.com/forgehook/forgehostd/internal/llm/toolconv"
	openai "github.com/sashabaranov/go-openai"
)

// openaiChatMessages converts a CompletionRequest's messages (plus its
// separate System string) into the OpenAI chat-completions wire format
// shared by both the direct OpenAI and Azure OpenAI adapters — the two
// differ only in which *openai.Client they point at and how errors get
// classified, not in message/tool shape.
func openaiChatMessages(messages []llmpkg.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{Role: msg.Role}

		switch msg.Role {
		case "user", "system":
			if parts := attachmentParts(msg.Content, msg.Attachments); parts != nil {
				oaiMsg.MultiContent = parts
			} else {
				oaiMsg.Content = msg.Content
			}

		case "assistant":
			oaiMsg.Content = msg.Content
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}

		case "tool":
			if len(msg.ToolResults) > 0 {
				for _, tr := range msg.ToolResults {
					result = append(result, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    tr.Content,
						ToolCallID: tr.ToolCallID,
					})
				}
				continue
			}
		}

		result = append(result, oaiMsg)
	}

	return result
}

// attachmentParts builds the multi-content vision payload for a message
// carrying image attachments, or nil if text is the only content.
func attachmentParts(text string, attachments []llmpkg.Attachment) []openai.ChatMessagePart {
	hasImages := false
	for _, att := range attachments {
		if att.Type == "image" {
			hasImages = true
			break
		}
	}
	if !hasImages {
		return nil
	}

	parts := make([]openai.ChatMessagePart, 0, len(attachments)+1)
	if text != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
	}
	for _, att := range attachments {
		if att.Type != "image" {
			continue
		}
		url := att.URL
		if url == "" && len(att.Data) > 0 {
			mimeType := att.MimeType
			if mimeType == "" {
				mimeType = "image/png"
			}
			url = "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(att.Data)
		}
		if url == "" {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	return parts
}

// openaiChatTools adapts internal tool definitions via toolconv, the one
// shared conversion point both adapters use instead of each hand-rolling
// its own schema-marshal loop.
func openaiChatTools(tools []llmpkg.Tool) []openai.Tool {
	return toolconv.ToOpenAITools(tools)
}

// streamOpenAIChat drains an OpenAI-wire-compatible ChatCompletionStream
// into CompletionChunks, reassembling a tool call's streamed argument
// fragments by index the way both the OpenAI and Azure adapters need to.
// wrapErr lets each adapter tag errors with its own provider name.
func streamOpenAIChat(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *llmpkg.CompletionChunk, wrapErr func(error) error) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*llmpkg.ToolCall)

	for {
		select {
		case <-ctx.Done():
			chunks <- &llmpkg.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				for _, tc := range toolCalls {
					if tc.ID != "" && tc.Name != "" {
						chunks <- &llmpkg.CompletionChunk{ToolCall: tc}
					}
				}
				chunks <- &llmpkg.CompletionChunk{Done: true}
				return
			}
			chunks <- &llmpkg.CompletionChunk{Error: wrapErr(err), Done: true}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta

		if delta.Content != "" {
			chunks <- &llmpkg.CompletionChunk{Text: delta.Content}
		}

		if len(delta.ToolCalls) > 0 {
			for _, tc := range delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				if toolCalls[index] == nil {
					toolCalls[index] = &llmpkg.ToolCall{}
				}
				if tc.ID != "" {
					toolCalls[index].ID = tc.ID
				}
				if tc.Function.Name != "" {
					toolCalls[index].Name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					var currentArgs string
					if toolCalls[index].Input != nil {
						currentArgs = string(toolCalls[index].Input)
					}
					currentArgs += tc.Function.Arguments
					toolCalls[index].Input = json.RawMessage(currentArgs)
				}
			}
		}

		if response.Choices[0].FinishReason == "tool_calls" {
			for _, tc := range toolCalls {
				if tc.ID != "" && tc.Name != "" {
					chunks <- &llmpkg.CompletionChunk{ToolCall: tc}
				}
			}
			toolCalls = make(map[int]*llmpkg.ToolCall)
		}
	}
}

// isOpenAIRetryableError classifies an OpenAI-wire transport error the same
// way for both the direct OpenAI and Azure adapters.
func isOpenAIRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}

// wrapOpenAIError builds a *ProviderError from an OpenAI-wire client error,
// pulling the HTTP status and provider error code out of the SDK's own
// *openai.APIError/*openai.RequestError types when present instead of
// falling back to text classification, which both the OpenAI and Azure
// adapters need identically.
func wrapOpenAIError(providerName string, err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := NewProviderError(providerName, model, err).WithStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok && code != "" {
			providerErr = providerErr.WithCode(code)
		}
		if apiErr.Message != "" {
			providerErr = providerErr.WithMessage(apiErr.Message)
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(providerName, model, err).WithStatus(reqErr.HTTPStatusCode)
	}

	return NewProviderError(providerName, model, err)
}
