// Package orchestrator owns the asynchronous generation lifecycle: it
// admits one attempt per threat model, runs the assemble/complete/
// normalize pipeline on a bounded worker pool, and guarantees that
// every attempt ends in a terminal state.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"threatforge/internal/assembler"
	"threatforge/internal/llmclient"
	"threatforge/internal/repository/modelstore"
	"threatforge/internal/threatmodel"
)

const (
	// DefaultPoolSize bounds concurrent generations across all models.
	DefaultPoolSize = 4

	defaultProviderTimeout = 90 * time.Second
	retryAttempts          = 2
	retryBaseDelay         = 500 * time.Millisecond
)

// Coarse progress milestones reported while an attempt is in flight.
const (
	progressLoaded    = 10
	progressAssembled = 35
	progressResponded = 80
	progressDone      = 100
)

// ProgressEvent is pushed to the notifier on every stage change.
type ProgressEvent struct {
	ThreatModelID string             `json:"threat_model_id"`
	Status        threatmodel.Status `json:"status"`
	Progress      int                `json:"progress"`
	Error         string             `json:"error,omitempty"`
}

// GenerationStatus is the polled view of one model's attempt.
type GenerationStatus struct {
	Status      threatmodel.Status `json:"status"`
	Progress    int                `json:"progress"`
	Error       string             `json:"error,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	EndedAt     *time.Time         `json:"ended_at,omitempty"`
	ThreatCount int                `json:"threat_count"`
}

// Options tune the service; zero values fall back to defaults.
type Options struct {
	PoolSize        int
	ProviderTimeout time.Duration
	Notifier        func(ProgressEvent)
}

// Service drives generation attempts end to end.
type Service struct {
	store     *modelstore.Store
	assembler *assembler.Assembler
	provider  llmclient.Provider
	sem       chan struct{}
	notify    func(ProgressEvent)
	now       func() time.Time

	mu       sync.Mutex
	progress map[string]int
}

// New wires the service. The provider is wrapped with the retry and
// timeout policy here so backends stay single-shot.
func New(store *modelstore.Store, asm *assembler.Assembler, provider llmclient.Provider, opts Options) *Service {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Service{
		store:     store,
		assembler: asm,
		provider: llmclient.Chain(provider,
			llmclient.Retry(retryAttempts, retryBaseDelay),
			llmclient.Timeout(timeout),
		),
		sem:      make(chan struct{}, poolSize),
		notify:   opts.Notifier,
		now:      time.Now,
		progress: make(map[string]int),
	}
}

// StartGeneration flips the model into generating and hands the work to
// a background goroutine. modelstore.ErrConflict when an attempt is
// already in flight, modelstore.ErrNotFound for unknown ids.
func (s *Service) StartGeneration(ctx context.Context, id string) error {
	if err := s.store.BeginGeneration(ctx, id, s.now()); err != nil {
		return err
	}
	s.setProgress(id, 0)
	s.publish(id, threatmodel.StatusGenerating, 0, "")

	go s.executeGeneration(id)
	return nil
}

// GetGenerationStatus reports the model's lifecycle state plus a coarse
// progress figure for in-flight attempts.
func (s *Service) GetGenerationStatus(ctx context.Context, id string) (*GenerationStatus, error) {
	tm, err := s.store.LoadThreatModel(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &GenerationStatus{
		Status:      tm.Status,
		Error:       tm.GenerationError,
		StartedAt:   tm.GenerationStarted,
		EndedAt:     tm.GenerationEnded,
		ThreatCount: len(tm.Threats),
	}
	switch tm.Status {
	case threatmodel.StatusGenerating:
		st.Progress = s.currentProgress(id)
	case threatmodel.StatusCompleted, threatmodel.StatusFailed:
		st.Progress = progressDone
	}
	return st, nil
}

func (s *Service) setProgress(id string, p int) {
	s.mu.Lock()
	s.progress[id] = p
	s.mu.Unlock()
}

func (s *Service) currentProgress(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[id]
}

func (s *Service) clearProgress(id string) {
	s.mu.Lock()
	delete(s.progress, id)
	s.mu.Unlock()
}

func (s *Service) publish(id string, status threatmodel.Status, progress int, errMsg string) {
	if s.notify == nil {
		return
	}
	s.notify(ProgressEvent{
		ThreatModelID: id,
		Status:        status,
		Progress:      progress,
		Error:         errMsg,
	})
}
