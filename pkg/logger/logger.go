package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lennartalff/cloudbot/pkg/config"
)

// lvlVar is a slog.LevelVar that can be used to get/set the minimal log level.
var lvlVar = &slog.LevelVar{}

// logFile is the open log file, if 'output-to' is a directory.
var logFile *os.File

// Init initialize a logger according to the configuration and set it as the
// slog.Default(). When 'output-to' is a directory, a new log file named by
// the start time is created inside it.
func Init() error {
	lc := config.Logger()

	lvlVar.Set(lc.Level)
	opts := &slog.HandlerOptions{
		AddSource: lc.AddSource,
		Level:     lvlVar,
	}

	var w io.Writer
	switch strings.ToLower(lc.OutputTo) {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	case "discard":
		w = io.Discard
	default:
		if err := os.MkdirAll(lc.OutputTo, 0o755); err != nil {
			return fmt.Errorf("cannot create log directory %q: %w", lc.OutputTo, err)
		}
		name := time.Now().UTC().Format("2006-01-02-15:04:05") + ".log"
		f, err := os.OpenFile(filepath.Join(lc.OutputTo, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		logFile = f
		w = f
	}

	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Close closes the log file, if any.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// HandleGetLevel is an http handler that returns the current minimal log level.
func HandleGetLevel(w http.ResponseWriter, r *http.Request) {
	if text, err := lvlVar.MarshalText(); err == nil {
		w.Write(text)
	} else {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSetLevel is an http handler that sets the minimal log level.
func HandleSetLevel(w http.ResponseWriter, r *http.Request) {
	val := r.FormValue("value")
	if err := lvlVar.UnmarshalText([]byte(val)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

// lowLevelLog is the low-level logging function that wraps a slog logger, it
// is used to build adapters of slog for other logger packages like the cron
// library's.
func lowLevelLog(l *slog.Logger, level slog.Level, msg string, args ...any) {
	handler := l.Handler()
	if !handler.Enabled(context.Background(), level) {
		return
	}

	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)

	_ = handler.Handle(context.Background(), r)
}
