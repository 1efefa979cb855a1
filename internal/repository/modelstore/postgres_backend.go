package modelstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"threatforge/internal/threatmodel"
)

func (s *Store) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS threat_models (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  system_description TEXT NOT NULL DEFAULT '',
  questions JSONB NOT NULL DEFAULT '[]',
  status TEXT NOT NULL DEFAULT 'draft',
  threats JSONB NOT NULL DEFAULT '[]',
  summary TEXT NOT NULL DEFAULT '',
  recommendations JSONB NOT NULL DEFAULT '[]',
  generation_started TIMESTAMP WITH TIME ZONE,
  generation_ended TIMESTAMP WITH TIME ZONE,
  generation_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS context_files (
  id TEXT PRIMARY KEY,
  threat_model_id TEXT NOT NULL,
  file_name TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  storage_key TEXT NOT NULL,
  tag TEXT NOT NULL DEFAULT 'other'
);
CREATE INDEX IF NOT EXISTS idx_context_files_threat_model_id ON context_files (threat_model_id);

CREATE TABLE IF NOT EXISTS ticket_records (
  id TEXT PRIMARY KEY,
  threat_model_id TEXT NOT NULL,
  payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticket_records_threat_model_id ON ticket_records (threat_model_id);
`)
	})
	return s.schemaErr
}

const modelColumns = `id, title, description, system_description, questions, status,
threats, summary, recommendations, generation_started, generation_ended, generation_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*threatmodel.ThreatModel, error) {
	var (
		tm             threatmodel.ThreatModel
		questionsRaw   []byte
		threatsRaw     []byte
		recommendsRaw  []byte
		started, ended sql.NullTime
	)
	err := row.Scan(
		&tm.ID, &tm.Title, &tm.Description, &tm.SystemDescription,
		&questionsRaw, &tm.Status, &threatsRaw, &tm.Summary,
		&recommendsRaw, &started, &ended, &tm.GenerationError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questionsRaw, &tm.Questions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(threatsRaw, &tm.Threats); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recommendsRaw, &tm.Recommendations); err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		tm.GenerationStarted = &t
	}
	if ended.Valid {
		t := ended.Time
		tm.GenerationEnded = &t
	}
	return &tm, nil
}

func (s *Store) loadModelDB(ctx context.Context, id string) (*threatmodel.ThreatModel, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM threat_models WHERE id = $1`, id)
	return scanModel(row)
}

func (s *Store) putModelDB(ctx context.Context, tm threatmodel.ThreatModel) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	questions, err := json.Marshal(orEmptyQuestions(tm.Questions))
	if err != nil {
		return err
	}
	threats, err := json.Marshal(orEmptyThreats(tm.Threats))
	if err != nil {
		return err
	}
	recommendations, err := json.Marshal(orEmptyStrings(tm.Recommendations))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO threat_models (
  id, title, description, system_description, questions, status,
  threats, summary, recommendations, generation_started, generation_ended, generation_error
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id)
DO UPDATE SET title=EXCLUDED.title,
  description=EXCLUDED.description,
  system_description=EXCLUDED.system_description,
  questions=EXCLUDED.questions,
  status=EXCLUDED.status,
  threats=EXCLUDED.threats,
  summary=EXCLUDED.summary,
  recommendations=EXCLUDED.recommendations,
  generation_started=EXCLUDED.generation_started,
  generation_ended=EXCLUDED.generation_ended,
  generation_error=EXCLUDED.generation_error`,
		tm.ID, tm.Title, tm.Description, tm.SystemDescription, questions, tm.Status,
		threats, tm.Summary, recommendations, nullableTime(tm.GenerationStarted), nullableTime(tm.GenerationEnded), tm.GenerationError)
	return err
}

// beginGenerationDB takes a row lock so the status guard and the
// transition commit as one step; two racing starts serialize here and
// the loser sees generating.
func (s *Store) beginGenerationDB(ctx context.Context, id string, startedAt time.Time) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM threat_models WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if threatmodel.Status(status) == threatmodel.StatusGenerating {
		return ErrConflict
	}
	_, err = tx.ExecContext(ctx, `
UPDATE threat_models
SET status=$2, generation_started=$3, generation_ended=NULL, generation_error=''
WHERE id=$1`,
		id, threatmodel.StatusGenerating, startedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) completeGenerationDB(ctx context.Context, id string, threats []threatmodel.Threat, summary string, recommendations []string, endedAt time.Time) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	threatsRaw, err := json.Marshal(orEmptyThreats(threats))
	if err != nil {
		return err
	}
	recommendsRaw, err := json.Marshal(orEmptyStrings(recommendations))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE threat_models
SET status=$2, threats=$3, summary=$4, recommendations=$5, generation_ended=$6, generation_error=''
WHERE id=$1`,
		id, threatmodel.StatusCompleted, threatsRaw, summary, recommendsRaw, endedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) failGenerationDB(ctx context.Context, id string, message string, endedAt time.Time) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE threat_models
SET status=$2, generation_error=$3, generation_ended=$4
WHERE id=$1`,
		id, threatmodel.StatusFailed, message, endedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) loadFilesDB(ctx context.Context, id string) ([]threatmodel.ContextFile, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, threat_model_id, file_name, mime_type, storage_key, tag
FROM context_files WHERE threat_model_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []threatmodel.ContextFile
	for rows.Next() {
		var f threatmodel.ContextFile
		if err := rows.Scan(&f.ID, &f.ThreatModelID, &f.FileName, &f.MimeType, &f.StorageKey, &f.Tag); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) putFilesDB(ctx context.Context, id string, files []threatmodel.ContextFile) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM context_files WHERE threat_model_id = $1`, id); err != nil {
		return err
	}
	for _, f := range files {
		_, err := tx.ExecContext(ctx, `
INSERT INTO context_files (id, threat_model_id, file_name, mime_type, storage_key, tag)
VALUES ($1,$2,$3,$4,$5,$6)`,
			f.ID, id, f.FileName, f.MimeType, f.StorageKey, f.Tag)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) loadTicketsDB(ctx context.Context, id string) ([]threatmodel.TicketRecord, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM ticket_records WHERE threat_model_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []threatmodel.TicketRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var t threatmodel.TicketRecord
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) putTicketsDB(ctx context.Context, id string, tickets []threatmodel.TicketRecord) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_records WHERE threat_model_id = $1`, id); err != nil {
		return err
	}
	for _, t := range tickets {
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ticket_records (id, threat_model_id, payload)
VALUES ($1,$2,$3)`,
			t.ID, id, raw); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func orEmptyQuestions(in []threatmodel.QuestionAnswer) []threatmodel.QuestionAnswer {
	if in == nil {
		return []threatmodel.QuestionAnswer{}
	}
	return in
}

func orEmptyThreats(in []threatmodel.Threat) []threatmodel.Threat {
	if in == nil {
		return []threatmodel.Threat{}
	}
	return in
}

func orEmptyStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
