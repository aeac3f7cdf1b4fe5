package history_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lennartalff/cloudbot/pkg/backup"
	"github.com/lennartalff/cloudbot/pkg/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(filepath.Join(t.TempDir(), "cloudbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func result(start time.Time, trigger backup.Trigger, success bool) *backup.Result {
	res := &backup.Result{
		Trigger:    trigger,
		Dir:        "/backup/" + start.Format("2006-01-02-15:04:05"),
		StartedAt:  start,
		FinishedAt: start.Add(5 * time.Minute),
		Success:    success,
		Steps: []backup.StepResult{
			{Step: backup.StepPrepare, StartedAt: start, FinishedAt: start},
			{Step: backup.StepMaintenanceOn, StartedAt: start, FinishedAt: start},
		},
	}
	if !success {
		res.Error = "failed to dump database: boom"
		res.Steps[1].Error = "boom"
	}
	return res
}

func TestEmptyStore(t *testing.T) {
	assert := assert.New(t)
	s := openStore(t)

	runs, err := s.Recent(10)
	assert.Nil(err)
	assert.Empty(runs)

	last, err := s.LastRun()
	assert.Nil(err)
	assert.Nil(last)
}

func TestRecordAndQuery(t *testing.T) {
	assert := assert.New(t)
	s := openStore(t)

	base := time.Date(2024, 5, 1, 3, 30, 0, 0, time.UTC)
	assert.Nil(s.Record(result(base, backup.TriggerCron, true)))
	assert.Nil(s.Record(result(base.Add(24*time.Hour), backup.TriggerManual, false)))
	assert.Nil(s.Record(result(base.Add(48*time.Hour), backup.TriggerCron, true)))

	runs, err := s.Recent(2)
	assert.Nil(err)
	if assert.Len(runs, 2) {
		// newest first
		assert.Equal(base.Add(48*time.Hour), runs[0].StartedAt)
		assert.Equal(base.Add(24*time.Hour), runs[1].StartedAt)
		assert.True(runs[0].Success)
		assert.False(runs[1].Success)
		assert.Equal("manual", runs[1].Trigger)
		assert.Contains(runs[1].Error, "boom")
	}

	last, err := s.LastRun()
	assert.Nil(err)
	if assert.NotNil(last) {
		assert.Equal(base.Add(48*time.Hour), last.StartedAt)
		assert.Equal(base.Add(48*time.Hour).Add(5*time.Minute), last.FinishedAt)
	}
}

func TestRecorder(t *testing.T) {
	assert := assert.New(t)
	s := openStore(t)

	rec := history.NewRecorder(s)
	rec.RunFinished(result(time.Date(2024, 5, 1, 3, 30, 0, 0, time.UTC),
		backup.TriggerAPI, true))

	last, err := s.LastRun()
	assert.Nil(err)
	if assert.NotNil(last) {
		assert.Equal("api", last.Trigger)
	}
}

func TestReopen(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "cloudbot.db")
	s, err := history.Open(path)
	assert.Nil(err)
	assert.Nil(s.Record(result(time.Date(2024, 5, 1, 3, 30, 0, 0, time.UTC),
		backup.TriggerCron, true)))
	assert.Nil(s.Close())

	// reopening must not re-run migrations destructively
	s, err = history.Open(path)
	assert.Nil(err)
	defer s.Close()

	runs, err := s.Recent(10)
	assert.Nil(err)
	assert.Len(runs, 1)
}
