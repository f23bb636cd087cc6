package flowstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// FileName is the conventional filename for a repo's Flow Store.
const FileName = "flows.db"

// ErrIllegalTransition is returned when a caller attempts to mutate a
// terminal Flow Run (§3 invariant 4).
var ErrIllegalTransition = errors.New("flowstore: illegal transition")

// ErrRunNotFound is returned when an operation names a run id that does
// not exist.
var ErrRunNotFound = errors.New("flowstore: run not found")

// Status is a Flow Run's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusStopped    Status = "stopped"
	StatusSuperseded Status = "superseded"
)

// Terminal reports whether s is one of the terminal statuses (§3 invariant 4).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped, StatusSuperseded:
		return true
	}
	return false
}

// FlowRun is one execution of the ticket-flow state machine for a repo.
type FlowRun struct {
	ID         string     `db:"id"`
	FlowType   string     `db:"flow_type"`
	Status     Status     `db:"status"`
	CreatedAt  time.Time  `db:"created_at"`
	StartedAt  *time.Time `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	StepID     string     `db:"step_id"`
	State      string     `db:"state"` // JSON document
	Error      string     `db:"error"`
}

// FlowEvent is one immutable timeline record on a run.
type FlowEvent struct {
	Seq       int64     `db:"seq"`
	RunID     string    `db:"run_id"`
	EventType string    `db:"event_type"`
	Timestamp time.Time `db:"timestamp"`
	StepID    string    `db:"step_id"`
	Data      string    `db:"data"` // JSON document
}

// FlowArtifact points at an on-disk file produced by a run.
type FlowArtifact struct {
	ID        int64     `db:"id"`
	RunID     string    `db:"run_id"`
	Kind      string    `db:"kind"`
	Path      string    `db:"path"`
	CreatedAt time.Time `db:"created_at"`
	Metadata  string    `db:"metadata"` // JSON document
}

// Store is a handle to one repo's Flow Store. Writers are serialized at the
// process level via mu; readers proceed concurrently through the
// underlying *sqlx.DB connection pool.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the Flow Store at path, applying
// migrations to bring it to the current schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("flowstore: mkdir for %s: %w", path, err)
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("flowstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer; sqlx serializes reads behind it too, kept simple and safe.

	if err := migrateUp(db.DB, path); err != nil {
		db.Close()
		return nil, fmt.Errorf("flowstore: migrate %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB, path string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	target, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("bind migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, path, target)
	if err != nil {
		return fmt.Errorf("construct migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new, pending Flow Run with a fresh id.
func (s *Store) CreateRun(ctx context.Context, id, flowType string, initialState json.RawMessage) (*FlowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(initialState) == 0 {
		initialState = json.RawMessage("{}")
	}
	run := &FlowRun{
		ID:        id,
		FlowType:  flowType,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
		State:     string(initialState),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_runs (id, flow_type, status, created_at, state)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.FlowType, run.Status, run.CreatedAt.Format(time.RFC3339Nano), run.State)
	if err != nil {
		return nil, fmt.Errorf("flowstore: create run: %w", err)
	}
	return run, nil
}

// SetRunStatus updates a run's status (and optionally step id / state
// patch / error), refusing once the run is already terminal.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status Status, patch *RunPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s is already %s", ErrIllegalTransition, runID, run.Status)
	}

	stepID := run.StepID
	state := run.State
	errMsg := run.Error
	startedAt := run.StartedAt
	finishedAt := run.FinishedAt

	if patch != nil {
		if patch.StepID != nil {
			stepID = *patch.StepID
		}
		if patch.State != nil {
			state = string(patch.State)
		}
		if patch.Error != nil {
			errMsg = *patch.Error
		}
	}
	now := time.Now().UTC()
	if status == StatusRunning && startedAt == nil {
		startedAt = &now
	}
	if status.Terminal() {
		finishedAt = &now
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE flow_runs
		SET status = ?, step_id = ?, state = ?, error = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		status, stepID, state, errMsg, formatNullable(startedAt), formatNullable(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("flowstore: set run status: %w", err)
	}
	return nil
}

// RunPatch carries the optional fields SetRunStatus may update alongside status.
type RunPatch struct {
	StepID *string
	State  json.RawMessage
	Error  *string
}

// AppendEvent appends an immutable Flow Event to run runID, returning its
// assigned monotonic seq. Refuses if the run is terminal.
func (s *Store) AppendEvent(ctx context.Context, runID, eventType string, data json.RawMessage, stepID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.getRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	if run.Status.Terminal() {
		return 0, fmt.Errorf("%w: run %s is terminal, cannot append events", ErrIllegalTransition, runID)
	}

	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_events (run_id, event_type, timestamp, step_id, data)
		VALUES (?, ?, ?, ?, ?)`,
		runID, eventType, time.Now().UTC().Format(time.RFC3339Nano), stepID, string(data))
	if err != nil {
		return 0, fmt.Errorf("flowstore: append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("flowstore: read assigned seq: %w", err)
	}
	return seq, nil
}

// RecordArtifact records a pointer to an on-disk file produced by a run.
func (s *Store) RecordArtifact(ctx context.Context, runID, kind, path string, metadata json.RawMessage) (*FlowArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	art := &FlowArtifact{
		RunID:     runID,
		Kind:      kind,
		Path:      path,
		CreatedAt: time.Now().UTC(),
		Metadata:  string(metadata),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_artifacts (run_id, kind, path, created_at, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		art.RunID, art.Kind, art.Path, art.CreatedAt.Format(time.RFC3339Nano), art.Metadata)
	if err != nil {
		return nil, fmt.Errorf("flowstore: record artifact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("flowstore: read assigned id: %w", err)
	}
	art.ID = id
	return art, nil
}

// ListFilter narrows ListRuns.
type ListFilter struct {
	FlowType string
	Status   Status
	Limit    int
}

// ListRuns returns runs matching filter, newest first.
func (s *Store) ListRuns(ctx context.Context, filter ListFilter) ([]FlowRun, error) {
	query := `SELECT id, flow_type, status, created_at, started_at, finished_at, step_id, state, error FROM flow_runs WHERE 1=1`
	var args []any
	if filter.FlowType != "" {
		query += ` AND flow_type = ?`
		args = append(args, filter.FlowType)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flowstore: list runs: %w", err)
	}
	defer rows.Close()

	var runs []FlowRun
	for rows.Next() {
		var r rawRun
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("flowstore: scan run: %w", err)
		}
		runs = append(runs, r.toFlowRun())
	}
	return runs, rows.Err()
}

// GetEventFilter narrows GetEvents.
type GetEventFilter struct {
	AfterSeq int64
	Types    []string
}

// GetEvents returns run runID's events ordered by seq, optionally filtered
// to seq > afterSeq and/or a set of event types.
func (s *Store) GetEvents(ctx context.Context, runID string, filter GetEventFilter) ([]FlowEvent, error) {
	query := `SELECT seq, run_id, event_type, timestamp, step_id, data FROM flow_events WHERE run_id = ?`
	args := []any{runID}
	if filter.AfterSeq > 0 {
		query += ` AND seq > ?`
		args = append(args, filter.AfterSeq)
	}
	if len(filter.Types) > 0 {
		query += ` AND event_type IN (` + placeholders(len(filter.Types)) + `)`
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flowstore: get events: %w", err)
	}
	defer rows.Close()

	var events []FlowEvent
	for rows.Next() {
		var e rawEvent
		if err := rows.StructScan(&e); err != nil {
			return nil, fmt.Errorf("flowstore: scan event: %w", err)
		}
		events = append(events, e.toFlowEvent())
	}
	return events, rows.Err()
}

// GetArtifacts returns all artifacts recorded for run runID.
func (s *Store) GetArtifacts(ctx context.Context, runID string) ([]FlowArtifact, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, run_id, kind, path, created_at, metadata FROM flow_artifacts WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("flowstore: get artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []FlowArtifact
	for rows.Next() {
		var a rawArtifact
		if err := rows.StructScan(&a); err != nil {
			return nil, fmt.Errorf("flowstore: scan artifact: %w", err)
		}
		artifacts = append(artifacts, a.toFlowArtifact())
	}
	return artifacts, rows.Err()
}

func (s *Store) getRun(ctx context.Context, runID string) (*FlowRun, error) {
	var r rawRun
	err := s.db.QueryRowxContext(ctx, `
		SELECT id, flow_type, status, created_at, started_at, finished_at, step_id, state, error
		FROM flow_runs WHERE id = ?`, runID).StructScan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("flowstore: get run: %w", err)
	}
	run := r.toFlowRun()
	return &run, nil
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func formatNullable(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
