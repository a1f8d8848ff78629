package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/fipsim/internal/models"
)

// timeLayout is fixed width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteTraceStore implements TraceStore using SQLite for persistence.
type SQLiteTraceStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteTraceStore opens (or creates) the trace database in dir.
func NewSQLiteTraceStore(dir string) (*SQLiteTraceStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteTraceStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteTraceStore) Path() string {
	return s.dbPath
}

// SaveRun implements TraceStore.
func (s *SQLiteTraceStore) SaveRun(ctx context.Context, run Run, frames []models.Snapshot) (string, error) {
	run = prepareRun(run, frames, uuid.NewString)

	input, err := json.Marshal(nonNil(run.Input))
	if err != nil {
		return "", fmt.Errorf("failed to marshal input: %w", err)
	}
	result, err := json.Marshal(nonNil(run.Result))
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, discipline, input, result, stats, frame_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(timeLayout), run.Discipline,
		string(input), string(result), string(stats), run.FrameCount)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO frames (run_id, seq, step, snapshot) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			return "", fmt.Errorf("failed to marshal frame %d: %w", f.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, f.Seq, f.Step, string(data)); err != nil {
			return "", fmt.Errorf("failed to insert frame %d: %w", f.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// GetRun implements TraceStore.
func (s *SQLiteTraceStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRunLocked(ctx, id)
}

func (s *SQLiteTraceStore) getRunLocked(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, discipline, input, result, stats, frame_count
		FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\'
		ORDER BY (id = ?) DESC LIMIT 2`,
		id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case runs[0].ID == id || len(runs) == 1:
		return &runs[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}

// ListRuns implements TraceStore.
func (s *SQLiteTraceStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, discipline, input, result, stats, frame_count
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Frames implements TraceStore.
func (s *SQLiteTraceStore) Frames(ctx context.Context, id string) ([]models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := s.getRunLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT snapshot FROM frames WHERE run_id = ? ORDER BY seq`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	frames := make([]models.Snapshot, 0, run.FrameCount)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		var snap models.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode frame: %w", err)
		}
		frames = append(frames, snap)
	}
	return frames, rows.Err()
}

// Frame implements TraceStore.
func (s *SQLiteTraceStore) Frame(ctx context.Context, id string, seq int) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := s.getRunLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx, `SELECT snapshot FROM frames WHERE run_id = ? AND seq = ?`, run.ID, seq).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s has no frame %d", ErrNotFound, run.ID, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query frame: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return &snap, nil
}

// DeleteRun implements TraceStore. Frames go with the run via ON DELETE CASCADE.
func (s *SQLiteTraceStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.getRunLocked(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close implements TraceStore.
func (s *SQLiteTraceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                            Run
		createdAt                    string
		input, result, statsEncoding string
	)
	if err := row.Scan(&r.ID, &createdAt, &r.Discipline, &input, &result, &statsEncoding, &r.FrameCount); err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	r.CreatedAt = t
	if err := json.Unmarshal([]byte(input), &r.Input); err != nil {
		return Run{}, fmt.Errorf("failed to decode input: %w", err)
	}
	if err := json.Unmarshal([]byte(result), &r.Result); err != nil {
		return Run{}, fmt.Errorf("failed to decode result: %w", err)
	}
	if err := json.Unmarshal([]byte(statsEncoding), &r.Stats); err != nil {
		return Run{}, fmt.Errorf("failed to decode stats: %w", err)
	}
	return r, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
