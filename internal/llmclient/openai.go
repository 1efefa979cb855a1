package llmclient

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"threatforge/internal/content"
)

var openaiImageMimes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}

// OpenAIProvider calls the Chat Completions API. It accepts text and
// image URLs but has no document input, so the assembler drops PDF
// files with a warning when this backend is active.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a client. If apiKey is empty, it falls
// back to the OPENAI_API_KEY env var.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}
}

func (o *OpenAIProvider) Name() string { return "OpenAI:" + o.model }
func (o *OpenAIProvider) Close() error { return nil }

func (o *OpenAIProvider) SupportsContentType(kind content.Kind) bool {
	switch kind {
	case content.KindText, content.KindImage:
		return true
	}
	return false
}

func (o *OpenAIProvider) SupportedImageMimeTypes() []string {
	return append([]string(nil), openaiImageMimes...)
}

func (o *OpenAIProvider) SupportsDocumentType() bool { return false }

// Complete performs a single chat-completion round trip.
func (o *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, &ProviderError{Provider: o.Name(), Err: NewPermanentError(fmt.Errorf("no messages"))}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		m, err := o.toMessage(msg)
		if err != nil {
			return nil, &ProviderError{Provider: o.Name(), Err: err}
		}
		messages = append(messages, m)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.ResponseFormat == FormatJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, &ProviderError{Provider: o.Name(), Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &ProviderError{Provider: o.Name(), Err: ErrEmptyResponse}
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (o *OpenAIProvider) toMessage(msg content.Message) (openai.ChatCompletionMessage, error) {
	role := openai.ChatMessageRoleUser
	switch msg.Role {
	case content.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case content.RoleSystem:
		role = openai.ChatMessageRoleSystem
	}
	if len(msg.Blocks) == 0 {
		return openai.ChatCompletionMessage{Role: role, Content: msg.Text}, nil
	}

	parts := make([]openai.ChatMessagePart, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		switch b.Kind {
		case content.KindText:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: b.Text,
			})
		case content.KindImage:
			if !mimeListed(b.ImageMime, openaiImageMimes) {
				return openai.ChatCompletionMessage{}, NewPermanentError(
					fmt.Errorf("unsupported image mime type %q", b.ImageMime))
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: b.ImageURL},
			})
		default:
			return openai.ChatCompletionMessage{}, NewPermanentError(
				fmt.Errorf("unsupported block kind %q", b.Kind))
		}
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}, nil
}
