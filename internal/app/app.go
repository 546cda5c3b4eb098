// Package app orchestrates one running instance of logroute: it loads
// configuration, builds a pipeline.Path per configured route, and
// drives their lifecycle alongside the stats registry, position store,
// and HTTP control/metrics surfaces. It generalizes the teacher's
// App/initializeComponents/Start/Stop/Run split
// (internal/app/app.go, internal/app/initialization.go) from a fixed
// monitor/dispatcher/sink trio to an arbitrary graph of
// pipeline.Path instances built from types.PathGraphConfig.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"logroute/internal/config"
	"logroute/pkg/mainloop"
	"logroute/pkg/pipeline"
	"logroute/pkg/positions"
	"logroute/pkg/secrets"
	"logroute/pkg/security"
	"logroute/pkg/stats"
	"logroute/pkg/tracing"
	"logroute/pkg/types"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// App coordinates every running path, the shared stats registry, and
// the HTTP surfaces exposed around them.
type App struct {
	config *types.Config
	logger *logrus.Logger

	secrets   *secrets.Resolver
	registry  *stats.Registry
	positions *positions.Store
	reactor   *mainloop.Reactor

	security *security.AuthManager
	tracing  *tracing.TracingManager

	paths []*runningPath

	httpServer    *http.Server
	metricsServer *http.Server

	configFile string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// runningPath bundles one built pipeline.Path with the destination
// drivers that own its queues' consumer side, so Start/Stop can address
// a route as a unit.
type runningPath struct {
	name    string
	path    *pipeline.Path
	drivers []*pathDriver
}

// New loads configFile, validates it, and builds every component the
// configuration names. It fails fast on the first construction error,
// mirroring the teacher's New/initializeComponents split.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.App)

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		config:     cfg,
		logger:     logger,
		configFile: configFile,
		ctx:        ctx,
		cancel:     cancel,
	}

	logger.WithFields(logrus.Fields{
		"server_enabled": cfg.Server.Enabled,
		"server_host":    cfg.Server.Host,
		"server_port":    cfg.Server.Port,
		"paths":          len(cfg.PathGraph.Paths),
	}).Info("configuration loaded")

	if err := a.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return a, nil
}

func (a *App) initializeComponents() error {
	a.secrets = secrets.New(a.config.Secrets)
	a.registry = stats.NewRegistry()

	if a.config.Positions.Enabled {
		store, err := positions.NewStore(a.config.Positions.Directory, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize position store: %w", err)
		}
		if err := store.Load(); err != nil {
			a.logger.WithError(err).Warn("failed to load position store, starting fresh")
		}
		a.positions = store
	}

	if a.config.Security.Auth.Enabled {
		a.security = security.NewAuthManager(a.config.Security.Auth, a.logger)
	}

	tm, err := tracing.NewTracingManager(a.config.Tracing, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracing = tm

	a.reactor = mainloop.New(a.logger)

	paths, err := a.buildPaths()
	if err != nil {
		return fmt.Errorf("failed to build path graph: %w", err)
	}
	a.paths = paths

	a.initHTTPServer()
	a.initMetricsServer()
	return nil
}

// Start puts every path's nodes and destination drivers in motion. The
// reactor goroutine starts first so ArmTimer-backed housekeeping (stats
// sync, position flush) is available the instant sources start
// producing.
func (a *App) Start() error {
	a.logger.Info("starting logroute")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reactor.Run()
	}()

	if a.positions != nil {
		stop := make(chan struct{})
		go a.positions.RunFlushLoop(10*time.Second, stop)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			<-a.ctx.Done()
			close(stop)
		}()
	}

	a.reactor.ArmTimer(5*time.Second, a.registry.SyncPrometheus)

	for _, rp := range a.paths {
		for _, d := range rp.drivers {
			if err := d.driver.Start(); err != nil {
				return fmt.Errorf("failed to start destination driver for path %q: %w", rp.name, err)
			}
		}
		if err := rp.path.InitAll(nil); err != nil {
			return fmt.Errorf("failed to start path %q: %w", rp.name, err)
		}
	}

	if a.metricsServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.WithField("addr", a.metricsServer.Addr).Info("starting metrics server")
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("metrics server error")
			}
		}()
	}

	if a.httpServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.WithField("addr", a.httpServer.Addr).Info("starting control server")
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("control server error")
			}
		}()
	}

	a.logger.Info("logroute started")
	return nil
}

// Stop tears paths down source-first (DeinitAll), then the destination
// drivers, then the shared infrastructure, in the mirror order Start
// brought them up.
func (a *App) Stop() error {
	a.logger.Info("stopping logroute")
	a.cancel()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.httpServer.Shutdown(ctx)
	}
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.metricsServer.Shutdown(ctx)
	}

	for _, rp := range a.paths {
		if err := rp.path.DeinitAll(); err != nil {
			a.logger.WithError(err).WithField("path", rp.name).Error("failed to deinit path")
		}
		for _, d := range rp.drivers {
			d.driver.Shutdown()
			d.driver.Wait()
		}
		rp.path.FreeAll()
	}

	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("failed to shutdown tracing manager")
		}
	}

	if a.positions != nil {
		if err := a.positions.Flush(); err != nil {
			a.logger.WithError(err).Error("failed to flush position store")
		}
	}

	a.reactor.Stop()
	a.wg.Wait()

	a.logger.Info("logroute stopped")
	return nil
}

// Run starts the application and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	a.logger.Info("shutdown signal received")
	return a.Stop()
}

func (a *App) initHTTPServer() {
	if !a.config.Server.Enabled {
		a.logger.Info("control server disabled in configuration")
		return
	}
	router := mux.NewRouter()
	a.registerHandlers(router)
	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.httpServer = &http.Server{Addr: addr, Handler: router}
}

func (a *App) initMetricsServer() {
	if !a.config.Metrics.Enabled {
		return
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(a.registry.Collector())
	mux := http.NewServeMux()
	mux.Handle(a.config.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", a.config.Metrics.Port)
	a.metricsServer = &http.Server{Addr: addr, Handler: mux}
}
