package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"threatforge/internal/assembler"
	"threatforge/internal/llmclient"
	"threatforge/internal/repository/modelstore"
	"threatforge/internal/storage"
	"threatforge/internal/threatmodel"
)

const goodResponse = `{
	"threats": [
		{
			"title": "Session token replay",
			"description": "Stolen bearer tokens replayed against the API.",
			"category": "spoofing",
			"likelihood": 4,
			"impact": 5,
			"affected_components": ["api-gateway"],
			"mitigations": [{"description": "Bind tokens to client fingerprint", "priority": "immediate", "effort": "medium"}]
		}
	],
	"summary": "One critical finding.",
	"recommendations": ["Rotate signing keys."]
}`

func newTestService(t *testing.T, provider llmclient.Provider, opts Options) (*Service, *modelstore.Store) {
	t.Helper()
	store := modelstore.New()
	svc := New(store, assembler.New(storage.NewMemoryStore()), provider, opts)
	return svc, store
}

func seed(t *testing.T, store *modelstore.Store, id string) {
	t.Helper()
	err := store.PutThreatModel(context.Background(), threatmodel.ThreatModel{
		ID:                id,
		Title:             "payments service",
		SystemDescription: "Go API behind an ALB with a Postgres backend.",
	})
	if err != nil {
		t.Fatalf("PutThreatModel() error = %v", err)
	}
}

// waitTerminal polls until the model leaves generating.
func waitTerminal(t *testing.T, svc *Service, id string) *GenerationStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := svc.GetGenerationStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("GetGenerationStatus() error = %v", err)
		}
		if st.Status == threatmodel.StatusCompleted || st.Status == threatmodel.StatusFailed {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("generation %s did not reach a terminal state", id)
	return nil
}

func TestStartGenerationCompletes(t *testing.T) {
	svc, store := newTestService(t, llmclient.NewFakeProvider(goodResponse), Options{})
	seed(t, store, "tm-1")

	if err := svc.StartGeneration(context.Background(), "tm-1"); err != nil {
		t.Fatalf("StartGeneration() error = %v", err)
	}
	st := waitTerminal(t, svc, "tm-1")
	if st.Status != threatmodel.StatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", st.Status, st.Error)
	}
	if st.Progress != 100 || st.ThreatCount != 1 {
		t.Fatalf("progress = %d, threats = %d", st.Progress, st.ThreatCount)
	}

	tm, err := store.LoadThreatModel(context.Background(), "tm-1")
	if err != nil {
		t.Fatalf("LoadThreatModel() error = %v", err)
	}
	if tm.Summary != "One critical finding." || len(tm.Recommendations) != 1 {
		t.Fatalf("result not persisted: %+v", tm)
	}
	th := tm.Threats[0]
	if th.RiskScore != 20 || th.Severity != threatmodel.SeverityCritical {
		t.Fatalf("threat scoring = %d/%q", th.RiskScore, th.Severity)
	}
	if tm.GenerationEnded == nil {
		t.Fatalf("end time not recorded")
	}
}

func TestStartGenerationConflict(t *testing.T) {
	blocked := make(chan struct{})
	provider := &gatedProvider{
		FakeProvider: llmclient.NewFakeProvider(goodResponse),
		gate:         blocked,
	}
	svc, store := newTestService(t, provider, Options{})
	seed(t, store, "tm-1")

	if err := svc.StartGeneration(context.Background(), "tm-1"); err != nil {
		t.Fatalf("StartGeneration() error = %v", err)
	}
	err := svc.StartGeneration(context.Background(), "tm-1")
	if !errors.Is(err, modelstore.ErrConflict) {
		t.Fatalf("second StartGeneration() error = %v, want ErrConflict", err)
	}

	close(blocked)
	st := waitTerminal(t, svc, "tm-1")
	if st.Status != threatmodel.StatusCompleted {
		t.Fatalf("status = %q, want completed", st.Status)
	}
}

func TestStartGenerationNotFound(t *testing.T) {
	svc, _ := newTestService(t, llmclient.NewFakeProvider(goodResponse), Options{})
	if err := svc.StartGeneration(context.Background(), "missing"); !errors.Is(err, modelstore.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGenerationFailsWithoutUsableContent(t *testing.T) {
	svc, store := newTestService(t, llmclient.NewFakeProvider(goodResponse), Options{})
	err := store.PutThreatModel(context.Background(), threatmodel.ThreatModel{ID: "tm-bare", Title: "untitled"})
	if err != nil {
		t.Fatalf("PutThreatModel() error = %v", err)
	}

	if err := svc.StartGeneration(context.Background(), "tm-bare"); err != nil {
		t.Fatalf("StartGeneration() error = %v", err)
	}
	st := waitTerminal(t, svc, "tm-bare")
	if st.Status != threatmodel.StatusFailed {
		t.Fatalf("status = %q, want failed", st.Status)
	}
	if st.Error != "threat model has no usable content" {
		t.Fatalf("error = %q", st.Error)
	}
}

func TestGenerationFailsOnUnparsableResponse(t *testing.T) {
	svc, store := newTestService(t, llmclient.NewFakeProvider("I cannot help with that."), Options{})
	seed(t, store, "tm-1")

	if err := svc.StartGeneration(context.Background(), "tm-1"); err != nil {
		t.Fatalf("StartGeneration() error = %v", err)
	}
	st := waitTerminal(t, svc, "tm-1")
	if st.Status != threatmodel.StatusFailed {
		t.Fatalf("status = %q, want failed", st.Status)
	}
	if st.Error != "model response could not be parsed" {
		t.Fatalf("error = %q", st.Error)
	}
}

func TestGenerationFailsOnProviderError(t *testing.T) {
	provider := llmclient.NewFakeProvider("")
	provider.Err = llmclient.NewPermanentError(&llmclient.ProviderError{
		Provider: "FakeLLM",
		Err:      errors.New("request rejected"),
	})
	svc, store := newTestService(t, provider, Options{})
	seed(t, store, "tm-1")

	if err := svc.StartGeneration(context.Background(), "tm-1"); err != nil {
		t.Fatalf("StartGeneration() error = %v", err)
	}
	st := waitTerminal(t, svc, "tm-1")
	if st.Status != threatmodel.StatusFailed {
		t.Fatalf("status = %q, want failed", st.Status)
	}
	if !strings.Contains(st.Error, "request rejected") {
		t.Fatalf("error = %q", st.Error)
	}
	// One attempt only; permanent errors skip the retry budget.
	if got := len(provider.Calls); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
}

func TestRetryAfterFailure(t *testing.T) {
	provider := llmclient.NewFakeProvider("not json at all")
	svc, store := newTestService(t, provider, Options{})
	seed(t, store, "tm-1")

	if err := svc.StartGeneration(context.Background(), "tm-1"); err != nil {
		t.Fatalf("StartGeneration() error = %v", err)
	}
	if st := waitTerminal(t, svc, "tm-1"); st.Status != threatmodel.StatusFailed {
		t.Fatalf("status = %q, want failed", st.Status)
	}

	provider.Response = goodResponse
	if err := svc.StartGeneration(context.Background(), "tm-1"); err != nil {
		t.Fatalf("retry StartGeneration() error = %v", err)
	}
	st := waitTerminal(t, svc, "tm-1")
	if st.Status != threatmodel.StatusCompleted {
		t.Fatalf("retry status = %q (error %q), want completed", st.Status, st.Error)
	}
	if st.Error != "" {
		t.Fatalf("stale error survived retry: %q", st.Error)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	gate := make(chan struct{})
	provider := &countingGatedProvider{
		FakeProvider: llmclient.NewFakeProvider(goodResponse),
		gate:         gate,
	}
	svc, store := newTestService(t, provider, Options{PoolSize: 2})
	ids := []string{"tm-1", "tm-2", "tm-3", "tm-4"}
	for _, id := range ids {
		seed(t, store, id)
		if err := svc.StartGeneration(context.Background(), id); err != nil {
			t.Fatalf("StartGeneration(%s) error = %v", id, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for provider.inFlight() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := provider.inFlight(); got != 2 {
		t.Fatalf("in-flight completions = %d, want 2", got)
	}

	close(gate)
	for _, id := range ids {
		if st := waitTerminal(t, svc, id); st.Status != threatmodel.StatusCompleted {
			t.Fatalf("%s status = %q, want completed", id, st.Status)
		}
	}
	if got := provider.maxSeen(); got > 2 {
		t.Fatalf("pool admitted %d concurrent completions, want <= 2", got)
	}
}

func TestProgressEvents(t *testing.T) {
	var mu sync.Mutex
	var events []ProgressEvent
	svc, store := newTestService(t, llmclient.NewFakeProvider(goodResponse), Options{
		Notifier: func(ev ProgressEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	seed(t, store, "tm-1")

	if err := svc.StartGeneration(context.Background(), "tm-1"); err != nil {
		t.Fatalf("StartGeneration() error = %v", err)
	}
	waitTerminal(t, svc, "tm-1")

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatalf("no progress events published")
	}
	last := events[len(events)-1]
	if last.Status != threatmodel.StatusCompleted || last.Progress != 100 {
		t.Fatalf("final event = %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Progress < events[i-1].Progress {
			t.Fatalf("progress went backwards at %d: %+v", i, events)
		}
	}
}

// gatedProvider blocks Complete until the gate closes.
type gatedProvider struct {
	*llmclient.FakeProvider
	gate chan struct{}
}

func (g *gatedProvider) Complete(ctx context.Context, req llmclient.CompletionRequest) (*llmclient.CompletionResponse, error) {
	<-g.gate
	return g.FakeProvider.Complete(ctx, req)
}

// countingGatedProvider tracks how many Complete calls overlap.
type countingGatedProvider struct {
	*llmclient.FakeProvider
	gate chan struct{}

	mu      sync.Mutex
	current int
	max     int
}

func (c *countingGatedProvider) Complete(ctx context.Context, req llmclient.CompletionRequest) (*llmclient.CompletionResponse, error) {
	c.mu.Lock()
	c.current++
	if c.current > c.max {
		c.max = c.current
	}
	c.mu.Unlock()
	<-c.gate
	defer func() {
		c.mu.Lock()
		c.current--
		c.mu.Unlock()
	}()
	return c.FakeProvider.Complete(ctx, req)
}

func (c *countingGatedProvider) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *countingGatedProvider) maxSeen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}
