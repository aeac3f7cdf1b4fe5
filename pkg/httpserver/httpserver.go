package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lennartalff/cloudbot/pkg/config"
)

var (
	mux = http.NewServeMux()
	svr = &http.Server{}
)

// Enabled returns true if the status API server is configured.
func Enabled() bool {
	return config.HTTP().Addr != ""
}

// Start starts the http server. It does nothing when no listen address is
// configured.
func Start() {
	if !Enabled() {
		slog.Info("status api server disabled")
		return
	}

	go func() {
		svr.Addr = config.HTTP().Addr
		svr.Handler = mux

		err := svr.ListenAndServe()
		if err == nil || err == http.ErrServerClosed {
			return
		}

		slog.Error(
			"http server stopped unexpectly",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}()

	slog.Info("http server started", slog.String("address", config.HTTP().Addr))
}

// Shutdown stops the http server.
func Shutdown() {
	if !Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	svr.Shutdown(ctx)
	cancel()
	slog.Info("http server stopped")
}

// Handle registers the handler for the given pattern in [mux].
func Handle(pattern string, handler http.Handler) {
	mux.Handle(pattern, handler)
}

// HandleFunc registers the handler function for the given pattern in [mux].
func HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	mux.HandleFunc(pattern, handler)
}
