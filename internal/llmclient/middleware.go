package llmclient

import (
	"context"
	"errors"
	"time"
)

// Retry retries Complete up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors are not retried; if the
// context is canceled, it stops immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Provider) Provider {
		return &retrying{Provider: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	Provider
	max  int
	base time.Duration
}

func (r *retrying) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.Provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		time.Sleep(r.base * time.Duration(1<<i))
	}
	return nil, last
}

// Timeout bounds each Complete call with its own deadline.
func Timeout(d time.Duration) Middleware {
	return func(next Provider) Provider {
		return &timed{Provider: next, d: d}
	}
}

type timed struct {
	Provider
	d time.Duration
}

func (t *timed) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if t.d <= 0 {
		return t.Provider.Complete(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	resp, err := t.Provider.Complete(ctx, req)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &ProviderError{Provider: t.Name(), Err: errors.New("provider call timed out")}
	}
	return resp, err
}
