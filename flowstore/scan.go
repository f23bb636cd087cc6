package flowstore

import (
	"database/sql"
	"time"
)

// rawRun mirrors the flow_runs row shape for scanning: timestamps are
// stored as TEXT (RFC3339Nano) and may be NULL, which FlowRun's plain
// *time.Time fields can't scan directly via the driver's database/sql path.
type rawRun struct {
	ID         string         `db:"id"`
	FlowType   string         `db:"flow_type"`
	Status     string         `db:"status"`
	CreatedAt  string         `db:"created_at"`
	StartedAt  sql.NullString `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
	StepID     sql.NullString `db:"step_id"`
	State      string         `db:"state"`
	Error      sql.NullString `db:"error"`
}

func (r rawRun) toFlowRun() FlowRun {
	return FlowRun{
		ID:         r.ID,
		FlowType:   r.FlowType,
		Status:     Status(r.Status),
		CreatedAt:  parseTime(r.CreatedAt),
		StartedAt:  parseNullTime(r.StartedAt),
		FinishedAt: parseNullTime(r.FinishedAt),
		StepID:     r.StepID.String,
		State:      r.State,
		Error:      r.Error.String,
	}
}

type rawEvent struct {
	Seq       int64          `db:"seq"`
	RunID     string         `db:"run_id"`
	EventType string         `db:"event_type"`
	Timestamp string         `db:"timestamp"`
	StepID    sql.NullString `db:"step_id"`
	Data      string         `db:"data"`
}

func (r rawEvent) toFlowEvent() FlowEvent {
	return FlowEvent{
		Seq:       r.Seq,
		RunID:     r.RunID,
		EventType: r.EventType,
		Timestamp: parseTime(r.Timestamp),
		StepID:    r.StepID.String,
		Data:      r.Data,
	}
}

type rawArtifact struct {
	ID        int64  `db:"id"`
	RunID     string `db:"run_id"`
	Kind      string `db:"kind"`
	Path      string `db:"path"`
	CreatedAt string `db:"created_at"`
	Metadata  string `db:"metadata"`
}

func (r rawArtifact) toFlowArtifact() FlowArtifact {
	return FlowArtifact{
		ID:        r.ID,
		RunID:     r.RunID,
		Kind:      r.Kind,
		Path:      r.Path,
		CreatedAt: parseTime(r.CreatedAt),
		Metadata:  r.Metadata,
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
