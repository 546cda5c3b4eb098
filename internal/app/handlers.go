package app

import (
	"encoding/json"
	"net/http"
	"time"

	"logroute/pkg/tracing"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// registerHandlers wires the control endpoints, generalizing the
// teacher's health/stats/config/positions route set
// (internal/app/handlers.go) from a fixed monitor/dispatcher pair to
// the path-graph model: /stats now reports pkg/stats.Registry's
// counters instead of a single dispatcher's.
func (a *App) registerHandlers(router *mux.Router) {
	var middleware func(http.Handler) http.Handler
	middleware = func(h http.Handler) http.Handler { return h }

	if a.security != nil {
		authMW := a.security.AuthMiddleware("api", "read")
		prev := middleware
		middleware = func(h http.Handler) http.Handler { return authMW(prev(h)) }
	}

	if a.config.Tracing.Enabled {
		traceMW := tracing.TraceHandler(a.tracing.GetTracer(), "http_request")
		prev := middleware
		middleware = func(h http.Handler) http.Handler { return traceMW(prev(h)) }
	}

	router.Handle("/health", middleware(http.HandlerFunc(a.healthHandler))).Methods("GET")
	router.Handle("/stats", middleware(http.HandlerFunc(a.statsHandler))).Methods("GET")
	router.Handle("/stats.csv", middleware(http.HandlerFunc(a.statsCSVHandler))).Methods("GET")
	router.Handle("/paths", middleware(http.HandlerFunc(a.pathsHandler))).Methods("GET")
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"app":       a.config.App.Name,
		"version":   a.config.App.Version,
		"paths":     len(a.paths),
		"host":      hostStats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// hostStats reports a quick CPU/memory snapshot of the host the process
// is running on. gopsutil's own counters are cumulative since boot, so a
// zero-interval cpu.Percent call (which itself samples twice internally)
// is used rather than tracking a previous sample across requests.
func hostStats() map[string]any {
	out := map[string]any{}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		out["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out["mem_used_percent"] = vm.UsedPercent
		out["mem_used_bytes"] = vm.Used
		out["mem_total_bytes"] = vm.Total
	}
	return out
}

func (a *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if err := a.registry.FormatLogLine(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *App) statsCSVHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	if err := a.registry.FormatCSV(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *App) pathsHandler(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(a.paths))
	for _, rp := range a.paths {
		names = append(names, rp.name)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"paths": names})
}
