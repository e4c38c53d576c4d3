package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/go-drift/pushbridge/cmd/pushbridge/internal/config"
	"github.com/go-drift/pushbridge/pkg/bridge"
	"github.com/go-drift/pushbridge/pkg/command"
	"github.com/go-drift/pushbridge/pkg/display"
	"github.com/go-drift/pushbridge/pkg/logger"
	"github.com/go-drift/pushbridge/pkg/metrics"
	"github.com/go-drift/pushbridge/pkg/script"
	"github.com/go-drift/pushbridge/pkg/sdk/natssdk"
)

// shutdownTimeout bounds the wait for in-flight commands on exit.
const shutdownTimeout = 10 * time.Second

func init() {
	RegisterCommand(&Command{
		Name:  "run",
		Short: "Run a script against the native SDK host",
		Long: `Run a Lua script against the native SDK host reached over NATS.

The command will:
  1. Load pushbridge.yaml and PUSHBRIDGE_* overrides
  2. Connect to nats.url and subscribe under nats.prefix
  3. Run the script, delivering events and command results to it
  4. Serve /health, /state, /commands and /metrics on metrics.addr (if set)

On SIGINT or SIGTERM every notification still awaiting the script is
displayed, in-flight commands are awaited and subscriptions are drained.`,
		Usage: "pushbridge run <script.lua>",
		Run:   runRun,
	})
}

func runRun(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("script path is required\n\nUsage: pushbridge run <script.lua>")
	}
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.Default().WithComponent("cli")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("pushbridge"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.NATS.URL, err)
	}
	defer nc.Close()

	native := natssdk.New(nc, natssdk.WithPrefix(cfg.NATS.Prefix), natssdk.WithTimeout(cfg.NATS.Timeout))
	b := bridge.New(native, bridgeConfig(cfg), bridge.WithMetrics(m))

	rt := script.New(b)
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Load(path); err != nil {
		shutdown(b, native, nc, nil)
		return err
	}

	var srv *bridge.DebugServer
	if cfg.Metrics.Addr != "" {
		srv, err = bridge.StartDebugServer(cfg.Metrics.Addr, b, reg)
		if err != nil {
			shutdown(b, native, nc, nil)
			return err
		}
	}

	log.Info("running",
		slog.String("script", path),
		slog.String("nats", cfg.NATS.URL),
		slog.String("prefix", cfg.NATS.Prefix),
		slog.Int("listeners", rt.Listeners()),
	)

	runErr := rt.Run(ctx)
	log.Info("shutting down")
	if err := shutdown(b, native, nc, srv); err != nil {
		return stderrors.Join(runErr, err)
	}
	// Results of commands that finished during shutdown.
	rt.Pump()
	return runErr
}

func shutdown(b *bridge.Bridge, native *natssdk.SDK, nc *nats.Conn, srv *bridge.DebugServer) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := native.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := nc.Drain(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

// loadConfig reads the configuration and installs the configured logger as
// the process default.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	logger.SetDefault(logger.New(logger.FromConfig(cfg.Log.Level, cfg.Log.Format)))
	return cfg, nil
}

func bridgeConfig(cfg *config.Config) bridge.Config {
	return bridge.Config{
		Display: display.Config{
			Timeout: cfg.Display.Timeout,
			History: cfg.Display.History,
		},
		Wrapper: command.Wrapper{
			Type:    cfg.SDK.WrapperType,
			Version: cfg.SDK.WrapperVersion,
		},
	}
}
