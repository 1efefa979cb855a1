package modelstore

import (
	"time"

	"threatforge/internal/threatmodel"
)

func (s *Store) loadModelMem(id string) (*threatmodel.ThreatModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tm, ok := s.models[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := tm
	out.Threats = append([]threatmodel.Threat(nil), tm.Threats...)
	out.Recommendations = append([]string(nil), tm.Recommendations...)
	out.Questions = append([]threatmodel.QuestionAnswer(nil), tm.Questions...)
	return &out, nil
}

func (s *Store) beginGenerationMem(id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.models[id]
	if !ok {
		return ErrNotFound
	}
	if tm.Status == threatmodel.StatusGenerating {
		return ErrConflict
	}
	tm.Status = threatmodel.StatusGenerating
	tm.GenerationStarted = &startedAt
	tm.GenerationEnded = nil
	tm.GenerationError = ""
	s.models[id] = tm
	return nil
}

func (s *Store) completeGenerationMem(id string, threats []threatmodel.Threat, summary string, recommendations []string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.models[id]
	if !ok {
		return ErrNotFound
	}
	tm.Status = threatmodel.StatusCompleted
	tm.Threats = append([]threatmodel.Threat(nil), threats...)
	tm.Summary = summary
	tm.Recommendations = append([]string(nil), recommendations...)
	tm.GenerationEnded = &endedAt
	tm.GenerationError = ""
	s.models[id] = tm
	return nil
}

func (s *Store) failGenerationMem(id string, message string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.models[id]
	if !ok {
		return ErrNotFound
	}
	tm.Status = threatmodel.StatusFailed
	tm.GenerationError = message
	tm.GenerationEnded = &endedAt
	s.models[id] = tm
	return nil
}
