package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"threatforge/internal/content"
	"threatforge/internal/llmclient"
	"threatforge/internal/normalizer"
	"threatforge/internal/threatmodel"
)

const systemPrompt = `You are a security engineer performing STRIDE threat modeling.
Ground every threat in the provided system context, files and tickets.
Rate likelihood and impact on a 1-5 scale. Respond with JSON only.`

const completionTemperature = 0.3

// ErrNoUsableContent fails an attempt before the provider is called.
var ErrNoUsableContent = errors.New("orchestrator: threat model has no usable content")

// executeGeneration runs one attempt to its terminal state. The model
// is already flipped to generating; whatever happens below, a terminal
// status gets written before this returns.
func (s *Service) executeGeneration(id string) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	defer s.clearProgress(id)

	ctx := context.Background()
	if err := s.runPipeline(ctx, id); err != nil {
		msg := failureMessage(err)
		log.Printf("generation %s failed: %v", id, err)
		if ferr := s.store.FailGeneration(ctx, id, msg, s.now()); ferr != nil {
			log.Printf("generation %s: recording failure: %v", id, ferr)
		}
		s.publish(id, threatmodel.StatusFailed, progressDone, msg)
		return
	}
	s.publish(id, threatmodel.StatusCompleted, progressDone, "")
}

func (s *Service) runPipeline(ctx context.Context, id string) error {
	tm, err := s.store.LoadThreatModel(ctx, id)
	if err != nil {
		return fmt.Errorf("loading threat model: %w", err)
	}
	files, err := s.store.LoadFiles(ctx, id)
	if err != nil {
		return fmt.Errorf("loading files: %w", err)
	}
	tickets, err := s.store.LoadTickets(ctx, id)
	if err != nil {
		return fmt.Errorf("loading tickets: %w", err)
	}
	if !hasUsableContent(tm, len(files), len(tickets)) {
		return ErrNoUsableContent
	}
	s.setProgress(id, progressLoaded)
	s.publish(id, threatmodel.StatusGenerating, progressLoaded, "")

	assembled := s.assembler.BuildContent(ctx, tm, files, tickets, s.provider)
	s.setProgress(id, progressAssembled)
	s.publish(id, threatmodel.StatusGenerating, progressAssembled, "")

	resp, err := s.provider.Complete(ctx, llmclient.CompletionRequest{
		Messages:       []content.Message{content.UserMessage(assembled.Blocks)},
		SystemPrompt:   systemPrompt,
		Temperature:    completionTemperature,
		ResponseFormat: llmclient.FormatJSON,
	})
	if err != nil {
		return fmt.Errorf("provider completion: %w", err)
	}
	s.setProgress(id, progressResponded)
	s.publish(id, threatmodel.StatusGenerating, progressResponded, "")

	result, err := normalizer.Normalize(resp.Content)
	if err != nil {
		return err
	}

	if err := s.store.CompleteGeneration(ctx, id, result.Threats, result.Summary, result.Recommendations, s.now()); err != nil {
		return fmt.Errorf("persisting result: %w", err)
	}
	s.setProgress(id, progressDone)
	return nil
}

// hasUsableContent rejects models where every context source is empty;
// calling the provider with nothing but the instruction wastes a round
// trip and yields garbage.
func hasUsableContent(tm *threatmodel.ThreatModel, fileCount, ticketCount int) bool {
	if strings.TrimSpace(tm.Description) != "" || strings.TrimSpace(tm.SystemDescription) != "" {
		return true
	}
	if len(tm.Questions) > 0 {
		return true
	}
	return fileCount > 0 || ticketCount > 0
}

// failureMessage picks the persisted, user-facing error text.
func failureMessage(err error) string {
	var perr *llmclient.ProviderError
	switch {
	case errors.Is(err, ErrNoUsableContent):
		return "threat model has no usable content"
	case errors.Is(err, normalizer.ErrParse):
		return "model response could not be parsed"
	case errors.As(err, &perr):
		return perr.Error()
	default:
		return err.Error()
	}
}
