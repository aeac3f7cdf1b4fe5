// Package history persists the outcome of backup runs in a SQLite database.
package history

import (
	"database/sql"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lennartalff/cloudbot/pkg/backup"
)

// Store is the backup run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at the given path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// the store is written from at most one backup run at a time, a single
	// connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the history database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a finished backup run and its steps.
func (s *Store) Record(res *backup.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	success := 0
	if res.Success {
		success = 1
	}

	r, err := tx.Exec(
		`INSERT INTO runs (started_at, finished_at, trig, success, dir, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.StartedAt.Unix(), res.FinishedAt.Unix(),
		string(res.Trigger), success, res.Dir, res.Error,
	)
	if err != nil {
		tx.Rollback()
		return err
	}

	runID, err := r.LastInsertId()
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, st := range res.Steps {
		_, err = tx.Exec(
			`INSERT INTO steps (run_id, step, started_at, finished_at, error)
			 VALUES (?, ?, ?, ?, ?)`,
			runID, string(st.Step),
			st.StartedAt.Unix(), st.FinishedAt.Unix(), st.Error,
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Run is one row of the backup run history.
type Run struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Trigger    string    `json:"trigger"`
	Success    bool      `json:"success"`
	Dir        string    `json:"dir"`
	Error      string    `json:"error,omitempty"`
}

// Recent returns the most recent n backup runs, newest first.
func (s *Store) Recent(n int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, finished_at, trig, success, dir, error
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		var success int
		err = rows.Scan(&r.ID, &started, &finished, &r.Trigger,
			&success, &r.Dir, &r.Error)
		if err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		r.FinishedAt = time.Unix(finished, 0).UTC()
		r.Success = success != 0
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// LastRun returns the most recent backup run, or nil if the history is empty.
func (s *Store) LastRun() (*Run, error) {
	runs, err := s.Recent(1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// Recorder adapts a Store to the backup.Observer interface. Only finished
// runs are persisted.
type Recorder struct {
	store *Store
}

// NewRecorder creates a Recorder for the given store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// StepStarted implements backup.Observer.
func (rec *Recorder) StepStarted(step backup.Step) {}

// StepFinished implements backup.Observer.
func (rec *Recorder) StepFinished(step backup.Step, err error) {}

// Progress implements backup.Observer.
func (rec *Recorder) Progress(frac float64) {}

// RunFinished implements backup.Observer.
func (rec *Recorder) RunFinished(res *backup.Result) {
	if err := rec.store.Record(res); err != nil {
		slog.Error("failed to record backup run",
			slog.String("error", err.Error()),
		)
	}
}
