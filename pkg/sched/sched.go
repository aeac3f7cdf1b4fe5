// Package sched runs backups on a cron schedule.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lennartalff/cloudbot/pkg/backup"
	"github.com/lennartalff/cloudbot/pkg/config"
	"github.com/lennartalff/cloudbot/pkg/logger"
)

// Scheduler triggers backup runs according to the configured cron expression.
type Scheduler struct {
	c      *cron.Cron
	runner *backup.Runner
	entry  cron.EntryID
}

// New creates a scheduler for the given configuration and backup runner.
func New(cfg *config.BackupConfig, runner *backup.Runner) (*Scheduler, error) {
	cl := logger.Cron(nil)
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))

	s := &Scheduler{c: c, runner: runner}
	id, err := c.AddFunc(cfg.Schedule, s.fire)
	if err != nil {
		return nil, err
	}
	s.entry = id

	return s, nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.c.Start()
	slog.Info("scheduler started",
		slog.Time("next-backup", s.Next()),
	)
}

// Stop stops the scheduler and waits for an in-flight backup run to finish.
// A backup must never be cut short because that could leave the nextcloud
// instance in maintenance mode.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
	slog.Info("scheduler stopped")
}

// Next returns the time of the next scheduled backup run.
func (s *Scheduler) Next() time.Time {
	return s.c.Entry(s.entry).Next
}

// fire executes one scheduled backup run.
func (s *Scheduler) fire() {
	slog.Info("starting scheduled backup")
	_, err := s.runner.Run(context.Background(), backup.TriggerCron)
	if err == nil {
		return
	}

	if errors.Is(err, backup.ErrBackupRunning) {
		slog.Warn("scheduled backup skipped, another backup is running")
	} else {
		slog.Error("scheduled backup failed", slog.String("error", err.Error()))
	}
}
