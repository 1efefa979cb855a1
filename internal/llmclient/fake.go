package llmclient

import (
	"context"
	"sync"

	"threatforge/internal/content"
)

// FakeProvider returns canned responses for offline/testing use.
// Capabilities are configurable so tests can exercise degradation.
type FakeProvider struct {
	mu         sync.Mutex
	Response   string
	Err        error
	ImageMimes []string
	Documents  bool

	Calls []CompletionRequest
}

func NewFakeProvider(response string) *FakeProvider {
	return &FakeProvider{
		Response:   response,
		ImageMimes: []string{"image/png", "image/jpeg"},
		Documents:  true,
	}
}

func (f *FakeProvider) Name() string { return "FakeLLM" }
func (f *FakeProvider) Close() error { return nil }

func (f *FakeProvider) SupportsContentType(kind content.Kind) bool {
	switch kind {
	case content.KindText:
		return true
	case content.KindImage:
		return len(f.ImageMimes) > 0
	case content.KindDocument:
		return f.Documents
	}
	return false
}

func (f *FakeProvider) SupportedImageMimeTypes() []string {
	return append([]string(nil), f.ImageMimes...)
}

func (f *FakeProvider) SupportsDocumentType() bool { return f.Documents }

func (f *FakeProvider) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, req)
	if f.Err != nil {
		return nil, f.Err
	}
	return &CompletionResponse{
		Content:      f.Response,
		Model:        "fake",
		FinishReason: "stop",
	}, nil
}
