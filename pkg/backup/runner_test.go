package backup

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lennartalff/cloudbot/pkg/config"
)

// recorder captures observer notifications.
type recorder struct {
	mu       sync.Mutex
	started  []Step
	finished []Step
	failed   map[Step]string
	progress []float64
	result   *Result
}

func newRecorder() *recorder {
	return &recorder{failed: map[Step]string{}}
}

func (r *recorder) StepStarted(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, step)
}

func (r *recorder) StepFinished(step Step, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, step)
	if err != nil {
		r.failed[step] = err.Error()
	}
}

func (r *recorder) Progress(frac float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, frac)
}

func (r *recorder) RunFinished(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = res
}

// fakeExec simulates the external tools. Keys are the names of the commands
// ("sudo", "mysqldump", "rsync"), values the error to return.
type fakeExec struct {
	mu       sync.Mutex
	fail     map[string]error
	commands [][]string
}

func (f *fakeExec) run(ctx context.Context, cmd *exec.Cmd) (string, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd.Args)
	f.mu.Unlock()

	name := filepath.Base(cmd.Args[0])
	if err := f.fail[name]; err != nil {
		return name + " exploded", err
	}

	switch name {
	case "mysqldump":
		cmd.Stdout.Write([]byte("-- dump\n"))
	case "rsync":
		cmd.Stdout.Write([]byte("  1,234  42% 11.2MB/s 0:00:01\r"))
		cmd.Stdout.Write([]byte("  2,345 100% 11.2MB/s 0:00:02\r"))
	}
	return "", nil
}

func newTestRunner(t *testing.T, fake *fakeExec) (*Runner, *recorder) {
	t.Helper()

	cfg := &config.BackupConfig{
		BackupDir:    t.TempDir(),
		Database:     "nextcloud",
		DefaultsFile: "user.cnf",
		DataDir:      "/srv/nextcloud/data",
		OccUser:      "www-data",
		OccPath:      "/var/www/nextcloud/occ",
	}

	r := NewRunner(cfg)
	r.run = fake.run

	rec := newRecorder()
	r.AddObserver(rec)
	return r, rec
}

func TestRunSuccess(t *testing.T) {
	assert := assert.New(t)

	fake := &fakeExec{}
	r, rec := newTestRunner(t, fake)

	res, err := r.Run(context.Background(), TriggerManual)
	assert.Nil(err)
	assert.True(res.Success)
	assert.Equal(TriggerManual, res.Trigger)

	want := []Step{StepPrepare, StepMaintenanceOn, StepDatabaseDump,
		StepDataCopy, StepMaintenanceOff}
	assert.Equal(want, rec.started)
	assert.Equal(want, rec.finished)
	assert.Empty(rec.failed)
	if assert.Len(rec.progress, 2) {
		assert.InDelta(0.42, rec.progress[0], 1e-9)
		assert.InDelta(1.0, rec.progress[1], 1e-9)
	}
	assert.Equal(res, rec.result)
	assert.Equal(res, r.LastResult())
	assert.False(r.Running())

	// the dump must have been written into the run directory
	dump, err := os.ReadFile(filepath.Join(res.Dir, "nextcloud-sqlbkp.bak"))
	assert.Nil(err)
	assert.Equal("-- dump\n", string(dump))

	// maintenance mode toggled on and off via occ
	assert.Equal([]string{"sudo", "-u", "www-data", "/usr/bin/php",
		"/var/www/nextcloud/occ", "maintenance:mode", "--on"}, fake.commands[0])
	assert.Equal("--off", fake.commands[len(fake.commands)-1][6])
}

func TestRunDumpFailure(t *testing.T) {
	assert := assert.New(t)

	fake := &fakeExec{fail: map[string]error{"mysqldump": errors.New("boom")}}
	r, rec := newTestRunner(t, fake)

	res, err := r.Run(context.Background(), TriggerCron)
	assert.NotNil(err)
	assert.False(res.Success)
	assert.Contains(res.Error, "failed to dump database")
	assert.Contains(res.Error, "mysqldump exploded")

	// the data copy is skipped, but maintenance mode is always disabled again
	assert.NotContains(rec.started, StepDataCopy)
	assert.Contains(rec.started, StepMaintenanceOff)
}

func TestRunCopyFailure(t *testing.T) {
	assert := assert.New(t)

	fake := &fakeExec{fail: map[string]error{"rsync": errors.New("boom")}}
	r, rec := newTestRunner(t, fake)

	res, err := r.Run(context.Background(), TriggerCron)
	assert.NotNil(err)
	assert.False(res.Success)
	assert.Contains(res.Error, "failed to backup data directory")
	assert.Contains(rec.started, StepMaintenanceOff)
	assert.Empty(rec.failed[StepMaintenanceOff])
}

func TestRunMaintenanceFailure(t *testing.T) {
	assert := assert.New(t)

	fake := &fakeExec{fail: map[string]error{"sudo": errors.New("boom")}}
	r, rec := newTestRunner(t, fake)

	res, err := r.Run(context.Background(), TriggerCron)
	assert.NotNil(err)
	assert.False(res.Success)
	assert.Contains(res.Error, "failed to enter maintenance mode")

	// nothing after the failed step may run, the instance never entered
	// maintenance mode
	assert.Equal([]Step{StepPrepare, StepMaintenanceOn}, rec.started)
}

func TestPrepare(t *testing.T) {
	assert := assert.New(t)

	r, _ := newTestRunner(t, &fakeExec{})

	dir := filepath.Join(r.cfg.BackupDir, "2024-01-02-03:04:05")
	assert.Nil(r.prepare(dir))

	err := r.prepare(dir)
	assert.NotNil(err)
	assert.Contains(err.Error(), "already exists")

	r.cfg.BackupDir = filepath.Join(r.cfg.BackupDir, "missing")
	err = r.prepare(filepath.Join(r.cfg.BackupDir, "2024-01-02-03:04:05"))
	assert.NotNil(err)
	assert.Contains(err.Error(), "does not exist")
}

func TestRunBaseDirMissing(t *testing.T) {
	assert := assert.New(t)

	fake := &fakeExec{}
	r, _ := newTestRunner(t, fake)
	r.cfg.BackupDir = filepath.Join(t.TempDir(), "missing")

	res, err := r.Run(context.Background(), TriggerManual)
	assert.NotNil(err)
	assert.False(res.Success)
	assert.Contains(res.Error, "does not exist")
	assert.Empty(fake.commands)
}

func TestRunSingleFlight(t *testing.T) {
	assert := assert.New(t)

	block := make(chan struct{})
	running := make(chan struct{})
	fake := &fakeExec{}
	r, _ := newTestRunner(t, fake)

	var once sync.Once
	r.run = func(ctx context.Context, cmd *exec.Cmd) (string, error) {
		once.Do(func() { close(running) })
		<-block
		return fake.run(ctx, cmd)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(context.Background(), TriggerCron)
	}()

	<-running
	assert.True(r.Running())

	res, err := r.Run(context.Background(), TriggerManual)
	assert.Nil(res)
	assert.ErrorIs(err, ErrBackupRunning)

	close(block)
	<-done
	assert.False(r.Running())
}

func TestLaunchAndWait(t *testing.T) {
	assert := assert.New(t)

	block := make(chan struct{})
	running := make(chan struct{})
	fake := &fakeExec{}
	r, rec := newTestRunner(t, fake)

	var once sync.Once
	r.run = func(ctx context.Context, cmd *exec.Cmd) (string, error) {
		once.Do(func() { close(running) })
		<-block
		return fake.run(ctx, cmd)
	}

	ch, err := r.Launch(context.Background(), TriggerAPI)
	assert.Nil(err)
	<-running
	assert.True(r.Running())

	// the run is claimed before Launch returns, a concurrent trigger must
	// lose immediately instead of starting a second run
	_, err = r.Launch(context.Background(), TriggerManual)
	assert.ErrorIs(err, ErrBackupRunning)

	close(block)
	r.Wait()

	assert.False(r.Running())
	if assert.NotNil(r.LastResult()) {
		assert.True(r.LastResult().Success)
		assert.Equal(TriggerAPI, r.LastResult().Trigger)
	}
	assert.Equal(r.LastResult(), rec.result)
	assert.Contains(rec.started, StepMaintenanceOff)
	assert.Equal(r.LastResult(), <-ch)
}
