// Package modelstore persists threat models and their imported
// context. It runs against Postgres when a DSN is configured and an
// in-memory map otherwise; both backends enforce the same guarded
// status transitions.
package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"threatforge/internal/threatmodel"
)

var (
	ErrNotFound = errors.New("modelstore: threat model not found")
	// ErrConflict means the model is already generating; the in-flight
	// attempt is untouched.
	ErrConflict = errors.New("modelstore: generation already in progress")
)

// Store dispatches to the Postgres backend when a db handle is set and
// to the in-memory backend otherwise. Files and tickets are immutable
// during a generation attempt, so their lists are cached.
type Store struct {
	db *sql.DB

	mu         sync.RWMutex
	models     map[string]threatmodel.ThreatModel
	files      map[string][]threatmodel.ContextFile
	tickets    map[string][]threatmodel.TicketRecord
	schemaOnce sync.Once
	schemaErr  error

	fileCache   *lru.Cache[string, []threatmodel.ContextFile]
	ticketCache *lru.Cache[string, []threatmodel.TicketRecord]
}

// New returns an in-memory store.
func New() *Store {
	return &Store{
		models:  make(map[string]threatmodel.ThreatModel),
		files:   make(map[string][]threatmodel.ContextFile),
		tickets: make(map[string][]threatmodel.TicketRecord),
	}
}

// NewPostgres opens a pooled connection against dsn.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	fileCache, err := lru.New[string, []threatmodel.ContextFile](1024)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ticketCache, err := lru.New[string, []threatmodel.TicketRecord](1024)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		db:          db,
		fileCache:   fileCache,
		ticketCache: ticketCache,
	}, nil
}

// NewFromEnv uses THREAT_STORE_PG_DSN when set, memory otherwise.
func NewFromEnv() *Store {
	dsn := strings.TrimSpace(os.Getenv("THREAT_STORE_PG_DSN"))
	if dsn == "" {
		return New()
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return New()
	}
	return s
}

func (s *Store) LoadThreatModel(ctx context.Context, id string) (*threatmodel.ThreatModel, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	if s.db != nil {
		return s.loadModelDB(ctx, id)
	}
	return s.loadModelMem(id)
}

func (s *Store) LoadFiles(ctx context.Context, id string) ([]threatmodel.ContextFile, error) {
	id = strings.TrimSpace(id)
	if s.db != nil {
		if s.fileCache != nil {
			if cached, ok := s.fileCache.Get(id); ok {
				return cached, nil
			}
		}
		files, err := s.loadFilesDB(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.fileCache != nil {
			s.fileCache.Add(id, files)
		}
		return files, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]threatmodel.ContextFile(nil), s.files[id]...), nil
}

func (s *Store) LoadTickets(ctx context.Context, id string) ([]threatmodel.TicketRecord, error) {
	id = strings.TrimSpace(id)
	if s.db != nil {
		if s.ticketCache != nil {
			if cached, ok := s.ticketCache.Get(id); ok {
				return cached, nil
			}
		}
		tickets, err := s.loadTicketsDB(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.ticketCache != nil {
			s.ticketCache.Add(id, tickets)
		}
		return tickets, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]threatmodel.TicketRecord(nil), s.tickets[id]...), nil
}

// BeginGeneration flips id into generating, records the start time and
// clears the previous error. ErrConflict when already generating.
func (s *Store) BeginGeneration(ctx context.Context, id string, startedAt time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}
	if s.db != nil {
		return s.beginGenerationDB(ctx, id, startedAt)
	}
	return s.beginGenerationMem(id, startedAt)
}

// CompleteGeneration persists the structured result, the completion
// time and the completed status as one atomic update.
func (s *Store) CompleteGeneration(ctx context.Context, id string, threats []threatmodel.Threat, summary string, recommendations []string, endedAt time.Time) error {
	id = strings.TrimSpace(id)
	if s.db != nil {
		return s.completeGenerationDB(ctx, id, threats, summary, recommendations, endedAt)
	}
	return s.completeGenerationMem(id, threats, summary, recommendations, endedAt)
}

// FailGeneration records the terminal failure; prior threats are left
// untouched.
func (s *Store) FailGeneration(ctx context.Context, id string, message string, endedAt time.Time) error {
	id = strings.TrimSpace(id)
	if message == "" {
		message = "generation failed"
	}
	if s.db != nil {
		return s.failGenerationDB(ctx, id, message, endedAt)
	}
	return s.failGenerationMem(id, message, endedAt)
}

// PutThreatModel upserts a record; used by the owning CRUD layer and
// by tests to seed state.
func (s *Store) PutThreatModel(ctx context.Context, tm threatmodel.ThreatModel) error {
	if strings.TrimSpace(tm.ID) == "" {
		return errors.New("modelstore: id is required")
	}
	if tm.Status == "" {
		tm.Status = threatmodel.StatusDraft
	}
	if s.db != nil {
		return s.putModelDB(ctx, tm)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[tm.ID] = tm
	return nil
}

func (s *Store) PutFiles(ctx context.Context, id string, files []threatmodel.ContextFile) error {
	id = strings.TrimSpace(id)
	if s.db != nil {
		if err := s.putFilesDB(ctx, id, files); err != nil {
			return err
		}
		if s.fileCache != nil {
			s.fileCache.Remove(id)
		}
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = append([]threatmodel.ContextFile(nil), files...)
	return nil
}

func (s *Store) PutTickets(ctx context.Context, id string, tickets []threatmodel.TicketRecord) error {
	id = strings.TrimSpace(id)
	if s.db != nil {
		if err := s.putTicketsDB(ctx, id, tickets); err != nil {
			return err
		}
		if s.ticketCache != nil {
			s.ticketCache.Remove(id)
		}
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[id] = append([]threatmodel.TicketRecord(nil), tickets...)
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
