// Package history records workflow runs in a local SQLite journal. It
// subscribes to the engine's event bus and appends one row per lifecycle
// event, giving `stageflow status --history` an audit trail across runs
// without the engine knowing the journal exists.
package history

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stageflow/stageflow/internal/event"
	"github.com/stageflow/stageflow/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS step_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	event_type TEXT NOT NULL,
	step_id    TEXT,
	at         TIMESTAMP NOT NULL,
	detail     TEXT
);
CREATE INDEX IF NOT EXISTS idx_step_events_run ON step_events(run_id, at);
`

// Journal is an append-only record of workflow runs and their events.
// One Journal instance covers one run; opening it registers the run.
type Journal struct {
	db     *sql.DB
	runID  string
	logger *logging.Logger
}

// Entry is one recorded event, as returned by queries.
type Entry struct {
	RunID     string
	EventType string
	StepID    string
	At        time.Time
	Detail    string
}

// Open opens (creating if needed) the journal at <projectDir>/history.db
// and registers a new run with a fresh UUID.
func Open(projectDir string, logger *logging.Logger) (*Journal, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	path := filepath.Join(projectDir, "history.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	runID := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, runID, time.Now().UTC()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	return &Journal{db: db, runID: runID, logger: logger}, nil
}

// OpenReadOnly opens the journal for querying without registering a run.
// Used by status reporting, which observes history but contributes none.
func OpenReadOnly(projectDir string, logger *logging.Logger) (*Journal, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	path := filepath.Join(projectDir, "history.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// RunID returns the UUID of the run this journal instance records.
func (j *Journal) RunID() string {
	return j.runID
}

// Attach subscribes the journal to every event on bus. Returns the
// subscription ID so callers can detach. Recording failures are logged and
// swallowed: the journal must never disturb the run it is observing.
func (j *Journal) Attach(bus *event.Bus) string {
	return bus.SubscribeAll(func(e event.Event) {
		if err := j.record(e); err != nil {
			j.logger.Warn("failed to record history event", "event", e.EventType(), "error", err)
		}
	})
}

// record appends one event row.
func (j *Journal) record(e event.Event) error {
	stepID, detail := describe(e)
	_, err := j.db.Exec(
		`INSERT INTO step_events (run_id, event_type, step_id, at, detail) VALUES (?, ?, ?, ?, ?)`,
		j.runID, e.EventType(), stepID, e.Timestamp().UTC(), detail,
	)
	return err
}

// describe extracts the step identifier and a short detail string from the
// known event types.
func describe(e event.Event) (stepID, detail string) {
	switch ev := e.(type) {
	case event.StepStartedEvent:
		return ev.Step.ID(), ""
	case event.StepCompletedEvent:
		return ev.Step.ID(), ev.Duration.String()
	case event.StepSkippedEvent:
		return ev.Step.ID(), ""
	case event.StepResetEvent:
		return ev.Step.ID(), ""
	case event.ModeChangedEvent:
		return ev.Step.ID(), ev.Old + " -> " + ev.New
	case event.WorkflowCompletedEvent:
		return "", fmt.Sprintf("completed=%d skipped=%d", ev.Completed, ev.Skipped)
	case event.RetryAttemptEvent:
		return ev.Operation, fmt.Sprintf("attempt %d", ev.Attempt)
	case event.RetrySucceededEvent:
		return ev.Operation, fmt.Sprintf("succeeded on attempt %d", ev.Attempt)
	case event.RetryFailedEvent:
		return ev.Operation, ev.Reason
	case event.RetryExhaustedEvent:
		return ev.Operation, fmt.Sprintf("exhausted after %d attempts: %s", ev.Attempts, ev.Reason)
	default:
		return "", ""
	}
}

// RecentEvents returns up to limit events across all runs, newest first.
func (j *Journal) RecentEvents(limit int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT run_id, event_type, COALESCE(step_id, ''), at, COALESCE(detail, '')
		 FROM step_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.EventType, &e.StepID, &e.At, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
