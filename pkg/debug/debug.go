// Package debug exposes configuration, log level and pprof over the status
// API server. The server is meant to listen on localhost only, so the debug
// endpoints carry no authentication.
package debug

import (
	"net/http/pprof"

	"github.com/lennartalff/cloudbot/pkg/config"
	"github.com/lennartalff/cloudbot/pkg/httpserver"
	"github.com/lennartalff/cloudbot/pkg/logger"
)

// Init registers the debug http handlers.
func Init() {
	httpserver.HandleFunc("GET /debug/config", config.HandleList)

	httpserver.HandleFunc("GET /debug/logger/level", logger.HandleGetLevel)
	httpserver.HandleFunc("POST /debug/logger/level", logger.HandleSetLevel)

	if config.HTTP().EnablePprof {
		httpserver.HandleFunc("GET /debug/pprof/", pprof.Index)
		httpserver.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		httpserver.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
		httpserver.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		httpserver.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	}
}
