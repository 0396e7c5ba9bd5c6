// Package main implements the entry point for the data logger. The data
// logger connects to OPC UA servers and Modbus TCP devices, acquires tag
// values by subscription or polling, classifies them against alarm limits
// and baseline statistics, and publishes the results to its event sinks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/config"
	"github.com/Martenstenden/Data-Logger-sub001/event"
	"github.com/Martenstenden/Data-Logger-sub001/metric"
	"github.com/Martenstenden/Data-Logger-sub001/natsclient"
	"github.com/Martenstenden/Data-Logger-sub001/service"
	"github.com/Martenstenden/Data-Logger-sub001/sink/logsink"
	"github.com/Martenstenden/Data-Logger-sub001/sink/natssink"
	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/transport/modbusbackend"
	"github.com/Martenstenden/Data-Logger-sub001/transport/opcuabackend"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "datalogger"
)

type cliConfig struct {
	configPath      string
	validate        bool
	showVersion     bool
	shutdownTimeout time.Duration
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()
	if cli.showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	// Bootstrap logger; replaced once the configured level is known.
	logger := setupLogger("info", "text")
	slog.SetDefault(logger)

	store := config.NewStore(cli.configPath, logger)
	cfg, err := store.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cli.validate {
		slog.Info("Configuration is valid", "path", cli.configPath)
		return nil
	}

	logger = setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	slog.Info("Starting data logger",
		"version", Version,
		"config_path", cli.configPath,
		"connections", len(cfg.Connections))

	ctx := context.Background()

	deps, metricsServer, cleanup, err := setupInfrastructure(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	monitor, err := setupMonitor(cfg, deps)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, monitor, store, metricsServer, cli.shutdownTimeout)
}

func parseFlags() *cliConfig {
	cli := &cliConfig{}
	flag.StringVar(&cli.configPath, "config", "datalogger.yaml", "path to the configuration file")
	flag.BoolVar(&cli.validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&cli.showVersion, "version", false, "print version and exit")
	flag.DurationVar(&cli.shutdownTimeout, "shutdown-timeout", 15*time.Second, "graceful shutdown budget")
	flag.Parse()
	return cli
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// setupInfrastructure builds the shared dependencies: metrics registry and
// endpoint, and the optional NATS connection. The returned cleanup closes
// whatever was opened, in reverse order.
func setupInfrastructure(cfg *config.Config, logger *slog.Logger) (
	component.Dependencies, *metric.Server, func(), error) {

	deps := component.Dependencies{Logger: logger}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps.MetricsRegistry = metric.NewMetricsRegistry()

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Address, "/metrics", deps.MetricsRegistry)
		if err := metricsServer.Start(); err != nil {
			cleanup()
			return deps, nil, nil, fmt.Errorf("start metrics endpoint: %w", err)
		}
		closers = append(closers, func() { _ = metricsServer.Stop(5 * time.Second) })
		logger.Info("metrics endpoint up", "address", cfg.Metrics.Address)
	}

	if cfg.NATS.Enabled {
		nc, err := natsclient.NewClient(cfg.NATS.URL, natsclient.WithName(cfg.NATS.Name))
		if err != nil {
			cleanup()
			return deps, nil, nil, fmt.Errorf("configure nats client: %w", err)
		}
		if err := nc.Connect(); err != nil {
			cleanup()
			return deps, nil, nil, fmt.Errorf("connect to nats: %w", err)
		}
		closers = append(closers, func() { nc.Close() })
		deps.NATSClient = nc
		logger.Info("nats connected", "url", cfg.NATS.URL)
	}

	return deps, metricsServer, cleanup, nil
}

// setupMonitor wires the transport registry, the sinks and the monitor.
func setupMonitor(cfg *config.Config, deps component.Dependencies) (*service.Monitor, error) {
	registry := transport.NewRegistry()
	if err := registry.Register(types.ProtocolOPCUA, opcuabackend.New); err != nil {
		return nil, err
	}
	if err := registry.Register(types.ProtocolModbus, modbusbackend.New); err != nil {
		return nil, err
	}

	sinks := []event.Sink{logsink.New(deps.GetLogger())}
	if deps.NATSClient != nil {
		ns, err := natssink.New(deps.NATSClient)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ns)
	}
	emitter, err := event.NewEmitter(deps, sinks...)
	if err != nil {
		return nil, err
	}

	monitor, err := service.NewMonitor(cfg, registry, emitter, deps)
	if err != nil {
		return nil, err
	}
	if err := monitor.Initialize(); err != nil {
		return nil, err
	}
	return monitor, nil
}

// runWithSignalHandling starts the monitor and blocks until SIGINT or
// SIGTERM, then stops everything within the shutdown budget. SIGHUP
// re-reads the configuration file and applies it without restarting.
func runWithSignalHandling(ctx context.Context, monitor *service.Monitor,
	store *config.Store, metricsServer *metric.Server, timeout time.Duration) error {

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := monitor.Start(runCtx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var sig os.Signal
	for {
		sig = <-sigCh
		if sig != syscall.SIGHUP {
			break
		}
		if err := reloadConfig(runCtx, store, monitor); err != nil {
			slog.Error("Configuration reload failed", "error", err)
		}
	}
	slog.Info("Shutdown signal received", "signal", sig.String())

	if err := monitor.Stop(timeout); err != nil {
		slog.Warn("monitor stop incomplete", "error", err)
	}
	cancel()
	if metricsServer != nil {
		_ = metricsServer.Stop(5 * time.Second)
	}

	slog.Info("Shutdown complete")
	return nil
}

// reloadConfig re-reads the configuration file and routes the changes
// through the monitor's coordinators.
func reloadConfig(ctx context.Context, store *config.Store, monitor *service.Monitor) error {
	cfg, err := store.Load()
	if err != nil {
		return fmt.Errorf("reload configuration: %w", err)
	}
	if err := monitor.ApplyConfig(ctx, cfg); err != nil {
		return fmt.Errorf("apply configuration: %w", err)
	}
	slog.Info("Configuration reloaded", "path", store.Path(), "connections", len(cfg.Connections))
	return nil
}
