// Package backup executes the nextcloud backup sequence: enable maintenance
// mode, dump the database, copy the data directory, disable maintenance mode.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lennartalff/cloudbot/pkg/config"
)

// Step identifies one step of the backup sequence.
type Step string

// The steps of a backup run, in execution order.
const (
	StepPrepare        Step = "prepare"
	StepMaintenanceOn  Step = "maintenance-on"
	StepDatabaseDump   Step = "database-dump"
	StepDataCopy       Step = "data-copy"
	StepMaintenanceOff Step = "maintenance-off"
)

// Trigger tells what started a backup run.
type Trigger string

// The possible triggers of a backup run.
const (
	TriggerCron   Trigger = "cron"
	TriggerManual Trigger = "manual"
	TriggerAPI    Trigger = "api"
)

// ErrBackupRunning is returned by Run when a backup is already in progress.
var ErrBackupRunning = errors.New("a backup is already running")

// names of the artifacts inside a backup directory.
const (
	sqlDumpName = "nextcloud-sqlbkp.bak"
	dataDirName = "nextcloud-dirbkp"
)

// phpBin is the php interpreter used to invoke occ.
const phpBin = "/usr/bin/php"

// StepResult records the outcome of one step.
type StepResult struct {
	Step       Step      `json:"step"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Error      string    `json:"error,omitempty"`
}

// Result records the outcome of a whole backup run.
type Result struct {
	Trigger    Trigger      `json:"trigger"`
	Dir        string       `json:"dir"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Success    bool         `json:"success"`
	Steps      []StepResult `json:"steps"`
	Error      string       `json:"error,omitempty"`
}

// Observer receives notifications while a backup run executes. All methods
// are called from the goroutine which executes the run.
type Observer interface {
	StepStarted(step Step)
	StepFinished(step Step, err error)
	Progress(frac float64)
	RunFinished(res *Result)
}

// runCommandFunc executes an external command and returns its captured
// standard error output. It exists so that tests can run the backup sequence
// without the real tools.
type runCommandFunc func(ctx context.Context, cmd *exec.Cmd) (stderr string, err error)

func runCommand(ctx context.Context, cmd *exec.Cmd) (string, error) {
	errBuf := &bytes.Buffer{}
	cmd.Stderr = errBuf
	err := cmd.Run()
	return errBuf.String(), err
}

// Runner executes backup runs. Only one run can be in progress at a time.
type Runner struct {
	cfg *config.BackupConfig
	run runCommandFunc

	mu        sync.Mutex
	running   bool
	observers []Observer
	last      *Result

	// wg tracks the in-flight run so that Wait can join it at shutdown.
	wg sync.WaitGroup
}

// NewRunner creates a backup runner for the given configuration.
func NewRunner(cfg *config.BackupConfig) *Runner {
	return &Runner{cfg: cfg, run: runCommand}
}

// AddObserver registers an observer. Observers must be registered before the
// first run.
func (r *Runner) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Running returns true while a backup run is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastResult returns the result of the most recent finished run, or nil if
// no run has finished yet.
func (r *Runner) LastResult() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run executes one backup run and blocks until it finished. It returns
// ErrBackupRunning without doing anything if a run is already in progress.
// The returned Result is non-nil even when err is non-nil, except for
// ErrBackupRunning.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (*Result, error) {
	observers, err := r.claim()
	if err != nil {
		return nil, err
	}
	res := r.finish(ctx, trigger, observers)
	if !res.Success {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// Launch starts a backup run in the background. The run is claimed before
// Launch returns, so a second Launch while a run is in progress fails with
// ErrBackupRunning instead of racing. The returned channel receives the
// result once the run finished. Use Wait to join the run.
func (r *Runner) Launch(ctx context.Context, trigger Trigger) (<-chan *Result, error) {
	observers, err := r.claim()
	if err != nil {
		return nil, err
	}
	ch := make(chan *Result, 1)
	go func() {
		ch <- r.finish(ctx, trigger, observers)
	}()
	return ch, nil
}

// Wait blocks until the in-flight run, if any, has finished. A run must
// never be abandoned halfway because that could leave the nextcloud
// instance in maintenance mode.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// claim marks a run as in progress and snapshots the observer list.
func (r *Runner) claim() ([]Observer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, ErrBackupRunning
	}
	r.running = true
	r.wg.Add(1)
	return r.observers, nil
}

// finish completes a claimed run and publishes its result.
func (r *Runner) finish(ctx context.Context, trigger Trigger, observers []Observer) *Result {
	defer r.wg.Done()

	res := r.execute(ctx, trigger, observers)

	r.mu.Lock()
	r.running = false
	r.last = res
	r.mu.Unlock()

	for _, o := range observers {
		o.RunFinished(res)
	}
	return res
}

// execute performs the actual backup sequence.
func (r *Runner) execute(ctx context.Context, trigger Trigger, observers []Observer) *Result {
	res := &Result{
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	res.Dir = filepath.Join(r.cfg.BackupDir, res.StartedAt.Format("2006-01-02-15:04:05"))

	defer func() {
		res.FinishedAt = time.Now().UTC()
	}()

	step := func(s Step, fn func() error) error {
		sr := StepResult{Step: s, StartedAt: time.Now().UTC()}
		for _, o := range observers {
			o.StepStarted(s)
		}
		err := fn()
		sr.FinishedAt = time.Now().UTC()
		if err != nil {
			sr.Error = err.Error()
			slog.Error("backup step failed",
				slog.String("step", string(s)),
				slog.String("error", err.Error()),
			)
		}
		res.Steps = append(res.Steps, sr)
		for _, o := range observers {
			o.StepFinished(s, err)
		}
		return err
	}

	fail := func(err error) *Result {
		res.Success = false
		res.Error = err.Error()
		return res
	}

	if err := step(StepPrepare, func() error { return r.prepare(res.Dir) }); err != nil {
		return fail(err)
	}

	if err := step(StepMaintenanceOn, func() error {
		return r.setMaintenance(ctx, true)
	}); err != nil {
		return fail(fmt.Errorf("failed to enter maintenance mode: %w", err))
	}

	// From here on, maintenance mode must be disabled again no matter what
	// the remaining steps do.
	var runErr error

	if err := step(StepDatabaseDump, func() error {
		return r.dumpDatabase(ctx, res.Dir)
	}); err != nil {
		runErr = fmt.Errorf("failed to dump database: %w", err)
	} else if err := step(StepDataCopy, func() error {
		return r.copyData(ctx, res.Dir, observers)
	}); err != nil {
		runErr = fmt.Errorf("failed to backup data directory: %w", err)
	}

	if err := step(StepMaintenanceOff, func() error {
		return r.setMaintenance(ctx, false)
	}); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to leave maintenance mode: %w", err)
	}

	if runErr != nil {
		return fail(runErr)
	}

	res.Success = true
	return res
}

// prepare creates the directory for a backup run.
func (r *Runner) prepare(dir string) error {
	err := os.Mkdir(dir, 0o755)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("backup directory %q already exists", dir)
	}
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("backup base directory %q does not exist", r.cfg.BackupDir)
	}
	return err
}

// setMaintenance toggles the nextcloud maintenance mode via occ.
func (r *Runner) setMaintenance(ctx context.Context, on bool) error {
	arg := "--off"
	if on {
		arg = "--on"
	}
	cmd := exec.CommandContext(ctx, "sudo",
		"-u", r.cfg.OccUser, phpBin, r.cfg.OccPath, "maintenance:mode", arg)
	stderr, err := r.run(ctx, cmd)
	if err != nil {
		return commandError(err, stderr)
	}
	return nil
}

// dumpDatabase writes a SQL dump of the nextcloud database into the backup
// directory.
func (r *Runner) dumpDatabase(ctx context.Context, dir string) error {
	f, err := os.Create(filepath.Join(dir, sqlDumpName))
	if err != nil {
		return err
	}
	defer f.Close()

	cmd := exec.CommandContext(ctx, "mysqldump",
		"--defaults-extra-file="+r.cfg.DefaultsFile,
		"--single-transaction", r.cfg.Database)
	cmd.Stdout = f
	stderr, err := r.run(ctx, cmd)
	if err != nil {
		return commandError(err, stderr)
	}
	return f.Sync()
}

// copyData copies the nextcloud data directory into the backup directory,
// publishing progress parsed from the rsync output.
func (r *Runner) copyData(ctx context.Context, dir string, observers []Observer) error {
	cmd := exec.CommandContext(ctx, "rsync", "-Aax", "--info=progress2",
		r.cfg.DataDir, filepath.Join(dir, dataDirName))
	cmd.Stdout = newProgressWriter(func(frac float64) {
		for _, o := range observers {
			o.Progress(frac)
		}
	})
	stderr, err := r.run(ctx, cmd)
	if err != nil {
		return commandError(err, stderr)
	}
	return nil
}

// commandError combines a command failure with its standard error output.
func commandError(err error, stderr string) error {
	if stderr = strings.TrimSpace(stderr); stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
