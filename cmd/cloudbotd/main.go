package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lennartalff/cloudbot/pkg/api"
	"github.com/lennartalff/cloudbot/pkg/backup"
	"github.com/lennartalff/cloudbot/pkg/bot"
	"github.com/lennartalff/cloudbot/pkg/config"
	"github.com/lennartalff/cloudbot/pkg/debug"
	"github.com/lennartalff/cloudbot/pkg/history"
	"github.com/lennartalff/cloudbot/pkg/httpserver"
	"github.com/lennartalff/cloudbot/pkg/logger"
	"github.com/lennartalff/cloudbot/pkg/sched"
	"github.com/lennartalff/cloudbot/pkg/users"
	"github.com/lennartalff/cloudbot/pkg/version"
)

func main() {
	flag.Parse()

	if config.ShowVersion() {
		version.Print("cloudbot daemon")
		return
	}

	if err := config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err.Error())
		os.Exit(1)
	}

	bc := config.Backup()
	if fi, err := os.Stat(bc.BackupDir); err != nil || !fi.IsDir() {
		fmt.Fprintln(os.Stderr, "backup directory does not exist, check your settings.conf")
		os.Exit(1)
	}

	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err.Error())
		os.Exit(1)
	}
	defer logger.Close()

	list, err := users.Load(config.Telegram().UsersFile)
	if err != nil {
		slog.Error("failed to load user list", slog.String("error", err.Error()))
		return
	}

	store, err := history.Open(bc.HistoryDB)
	if err != nil {
		slog.Error("failed to open history database", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	runner := backup.NewRunner(bc)
	runner.AddObserver(history.NewRecorder(store))

	scheduler, err := sched.New(bc, runner)
	if err != nil {
		slog.Error("failed to create scheduler", slog.String("error", err.Error()))
		return
	}

	b, err := bot.New(config.Telegram(), list, runner, store, scheduler.Next)
	if err != nil {
		slog.Error("failed to start bot", slog.String("error", err.Error()))
		return
	}
	b.SetProgressInterval(bc.UpdateInterval.Std())
	runner.AddObserver(b.Notifier())

	debug.Init()
	api.Init(runner, store, scheduler.Next)
	httpserver.Start()
	defer func() {
		httpserver.Shutdown()
		slog.Info("cloudbot stopped.")
	}()

	// join any run still in flight once the bot and the scheduler stopped,
	// so that maintenance mode is switched off again before we exit.
	defer runner.Wait()

	scheduler.Start()
	defer scheduler.Stop()

	b.Start()
	defer b.Stop()

	slog.Info("cloudbot started.")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	<-signals
	slog.Info("cloudbot stopping...")
}
