package llmclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"threatforge/internal/content"
)

type countingProvider struct {
	FakeProvider
	calls   atomic.Int32
	failFor int32
	err     error
}

func (c *countingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	n := c.calls.Add(1)
	if n <= c.failFor {
		return nil, c.err
	}
	return &CompletionResponse{Content: "{}", Model: "fake", FinishReason: "stop"}, nil
}

func userText(s string) []content.Message {
	return []content.Message{{Role: content.RoleUser, Text: s}}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	p := &countingProvider{failFor: 1, err: errors.New("boom")}
	wrapped := Chain(p, Retry(2, time.Millisecond))

	resp, err := wrapped.Complete(context.Background(), CompletionRequest{Messages: userText("hi")})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "{}" {
		t.Fatalf("content = %q", resp.Content)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	p := &countingProvider{failFor: 10, err: NewPermanentError(errors.New("bad request"))}
	wrapped := Chain(p, Retry(3, time.Millisecond))

	if _, err := wrapped.Complete(context.Background(), CompletionRequest{Messages: userText("hi")}); err == nil {
		t.Fatalf("expected error")
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	p := &countingProvider{failFor: 10, err: errors.New("unavailable")}
	wrapped := Chain(p, Retry(2, time.Millisecond))

	_, err := wrapped.Complete(context.Background(), CompletionRequest{Messages: userText("hi")})
	if err == nil || err.Error() != "unavailable" {
		t.Fatalf("error = %v, want unavailable", err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

type hangingProvider struct{ FakeProvider }

func (h *hangingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeoutSurfacesDistinctMessage(t *testing.T) {
	wrapped := Chain(&hangingProvider{}, Timeout(5*time.Millisecond))

	_, err := wrapped.Complete(context.Background(), CompletionRequest{Messages: userText("hi")})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var pErr *ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("error %v is not a ProviderError", err)
	}
	if pErr.Err.Error() != "provider call timed out" {
		t.Fatalf("message = %q", pErr.Err.Error())
	}
}

func TestProviderErrorCarriesName(t *testing.T) {
	err := &ProviderError{Provider: "Gemini:flash", Err: errors.New("rate limited")}
	if err.Error() != "Gemini:flash: rate limited" {
		t.Fatalf("message = %q", err.Error())
	}
}
