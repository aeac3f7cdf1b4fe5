// Package api exposes the daemon state over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/lennartalff/cloudbot/pkg/backup"
	"github.com/lennartalff/cloudbot/pkg/history"
	"github.com/lennartalff/cloudbot/pkg/httpserver"
	"github.com/lennartalff/cloudbot/pkg/xerrors"
)

// Status is the response of GET /status.
type Status struct {
	Running bool         `json:"running"`
	Next    time.Time    `json:"next"`
	Last    *history.Run `json:"last,omitempty"`
}

// service holds the state the HTTP handlers operate on.
type service struct {
	runner *backup.Runner
	store  *history.Store
	next   func() time.Time
}

var svcInst *service

// Init registers the API handlers.
func Init(runner *backup.Runner, store *history.Store, next func() time.Time) {
	svcInst = &service{runner: runner, store: store, next: next}

	httpserver.HandleFunc("GET /status", handleStatus)
	httpserver.HandleFunc("GET /backups", handleListBackups)
	httpserver.HandleFunc("POST /backups", handleTriggerBackup)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response, using the status code of the error
// when it carries one.
func writeError(w http.ResponseWriter, err error) {
	se := xerrors.Wrap(err, http.StatusInternalServerError).(*xerrors.StatusError)
	http.Error(w, se.Msg, se.StatusCode)
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	last, err := svcInst.store.LastRun()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, &Status{
		Running: svcInst.runner.Running(),
		Next:    svcInst.next(),
		Last:    last,
	})
}

func handleListBackups(w http.ResponseWriter, r *http.Request) {
	n := 20
	if v := r.FormValue("n"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n <= 0 {
			writeError(w, xerrors.New(http.StatusBadRequest, "invalid 'n'"))
			return
		}
	}

	runs, err := svcInst.store.Recent(n)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, runs)
}

func handleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	// the run outlives the request, failures end up in the history and the
	// log, not in this response.
	if _, err := svcInst.runner.Launch(context.Background(), backup.TriggerAPI); err != nil {
		writeError(w, xerrors.New(http.StatusConflict, err.Error()))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
