package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timetrack/internal/api"
	"timetrack/internal/config"
	"timetrack/internal/core"
	"timetrack/internal/logging"
	timetrackmcp "timetrack/internal/mcp"
	"timetrack/internal/notify"
	"timetrack/internal/store"
)

// app bundles the wired components shared by every run mode.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	tasks     *core.TaskManager
	timer     *core.TimeEntryCoordinator
	scheduler *core.Scheduler
	mcp       *timetrackmcp.MCPServer
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// stdout carries the MCP protocol in stdio modes.
	logOut := os.Stdout
	if cfg.Server.Mode != "http" {
		logOut = os.Stderr
	}
	logger := logging.NewWithWriter(logOut, cfg.Log.Level, cfg.Log.Format)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir, logger)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.Close()

	location := cfg.Location()
	tasks := core.NewTaskManager(storeInst, logger)
	timer := core.NewTimeEntryCoordinator(tasks, storeInst, logger, location)
	scheduler, err := core.NewScheduler(timer, buildNotifier(cfg, logger), logger, location, cfg.Sweep.Cron)
	if err != nil {
		logger.Error("create scheduler", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	if cfg.Sweep.Enabled {
		scheduler.Start(ctx)
	} else {
		logger.Info("automatic task closure disabled")
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		tasks:     tasks,
		timer:     timer,
		scheduler: scheduler,
		mcp:       timetrackmcp.NewMCPServer(tasks, timer, scheduler, logger, location),
	}

	switch cfg.Server.Mode {
	case "http":
		a.runHTTPMode(ctx)
	case "mcp":
		a.runMCPMode(cancel)
	case "both":
		a.runBothMode(ctx)
	}

	a.stopScheduler()
	logger.Info("shutdown complete")
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) core.Notifier {
	bark := cfg.Notification.Bark
	if !bark.Enabled {
		return &notify.NoOpNotifier{}
	}
	notifier, err := notify.NewBarkNotifier(bark.URL)
	if err != nil {
		logger.Warn("bark notifier disabled", "err", err)
		return &notify.NoOpNotifier{}
	}
	return notify.NewMultiNotifier(notifier)
}

// runHTTPMode serves the REST API, with MCP mounted at /mcp.
func (a *app) runHTTPMode(ctx context.Context) {
	server := a.newHTTPServer()
	serverErr := a.serveHTTP(server)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		a.logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		a.logger.Error("server error", "err", err)
	case <-ctx.Done():
	}
	a.shutdownHTTP(server)
}

// runMCPMode serves MCP over stdio only.
func (a *app) runMCPMode(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		a.logger.Info("received signal, shutting down...")
		cancel()
	}()

	if err := a.mcp.Run(); err != nil {
		a.logger.Error("mcp server error", "err", err)
	}
}

// runBothMode serves MCP over stdio and the HTTP API side by side.
func (a *app) runBothMode(ctx context.Context) {
	mcpErr := make(chan error, 1)
	go func() {
		if err := a.mcp.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := a.newHTTPServer()
	serverErr := a.serveHTTP(server)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		a.logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		a.logger.Error("server error", "err", err)
	case err := <-mcpErr:
		a.logger.Error("mcp server error", "err", err)
	case <-ctx.Done():
	}
	a.shutdownHTTP(server)
}

func (a *app) newHTTPServer() *api.Server {
	return api.NewServer(a.cfg.Server.Addr, a.tasks, a.timer, a.scheduler, a.mcp.HTTPHandler(), a.logger, a.cfg.Location())
}

func (a *app) serveHTTP(server *api.Server) <-chan error {
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	return serverErr
}

func (a *app) shutdownHTTP(server *api.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", "err", err)
	}
}

func (a *app) stopScheduler() {
	stopCtx := a.scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(a.cfg.ShutdownGrace):
		a.logger.Warn("scheduler stop timed out")
	}
}
