package llmclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	genai "google.golang.org/genai"

	"threatforge/internal/content"
)

var geminiImageMimes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}

// GeminiProvider is a thin wrapper around the official genai client.
// Gemini accepts inline bytes only, so image and document references
// are fetched and re-encoded inside Complete; the assembler hands over
// URLs and never loads binary payloads itself.
type GeminiProvider struct {
	cli   *genai.Client
	model string
	http  *http.Client
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	// The genai client reads the API key from env when the config
	// leaves it empty; keep the parameter for a consistent factory shape.
	_ = apiKey

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{
		cli:   cli,
		model: model,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (g *GeminiProvider) Name() string { return "Gemini:" + g.model }
func (g *GeminiProvider) Close() error { return nil }

func (g *GeminiProvider) SupportsContentType(kind content.Kind) bool {
	switch kind {
	case content.KindText, content.KindImage, content.KindDocument:
		return true
	}
	return false
}

func (g *GeminiProvider) SupportedImageMimeTypes() []string {
	return append([]string(nil), geminiImageMimes...)
}

func (g *GeminiProvider) SupportsDocumentType() bool { return true }

// Complete performs a single GenerateContent round trip.
func (g *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, &ProviderError{Provider: g.Name(), Err: NewPermanentError(fmt.Errorf("no messages"))}
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		parts, err := g.toParts(ctx, msg)
		if err != nil {
			return nil, &ProviderError{Provider: g.Name(), Err: err}
		}
		contents = append(contents, &genai.Content{Role: geminiRole(msg.Role), Parts: parts})
	}

	cfg := &genai.GenerateContentConfig{}
	if req.ResponseFormat == FormatJSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, &ProviderError{Provider: g.Name(), Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &ProviderError{Provider: g.Name(), Err: ErrEmptyResponse}
	}

	cand := resp.Candidates[0]
	out := &CompletionResponse{
		Content:      cand.Content.Parts[0].Text,
		Model:        g.model,
		FinishReason: string(cand.FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func (g *GeminiProvider) toParts(ctx context.Context, msg content.Message) ([]*genai.Part, error) {
	if len(msg.Blocks) == 0 {
		return []*genai.Part{{Text: msg.Text}}, nil
	}
	parts := make([]*genai.Part, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		switch b.Kind {
		case content.KindText:
			parts = append(parts, &genai.Part{Text: b.Text})
		case content.KindImage:
			data, err := g.fetch(ctx, b.ImageURL)
			if err != nil {
				return nil, fmt.Errorf("fetch image: %w", err)
			}
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: b.ImageMime, Data: data}})
		case content.KindDocument:
			data, err := g.fetch(ctx, b.DocumentURL)
			if err != nil {
				return nil, fmt.Errorf("fetch document %s: %w", b.FileName, err)
			}
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: b.DocumentMime, Data: data}})
		default:
			return nil, NewPermanentError(fmt.Errorf("unsupported block kind %q", b.Kind))
		}
	}
	return parts, nil
}

func (g *GeminiProvider) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func geminiRole(r content.Role) string {
	if r == content.RoleAssistant {
		return "model"
	}
	return "user"
}
