// File: cmd/uhttpd/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/momentics/uhttp/api"
	"github.com/momentics/uhttp/control"
	"github.com/momentics/uhttp/internal/transport"
	"github.com/momentics/uhttp/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		flags      control.Config
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reactor and run passes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := control.LoadConfig(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, &flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			lvl, _ := cfg.Level()
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	def := control.DefaultConfig()
	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&flags.Listen, "listen", def.Listen, "IPv4 address and port to bind")
	f.IntVar(&flags.Backlog, "backlog", def.Backlog, "listen queue depth (0 selects 16)")
	f.IntVar(&flags.MaxConnections, "max-connections", def.MaxConnections, "connection table limit (0 is unbounded)")
	f.Float64Var(&flags.PassRate, "pass-rate", def.PassRate, "reactor passes per second")
	f.StringVar(&flags.MetricsAddr, "metrics-addr", def.MetricsAddr, "admin HTTP address for /metrics, /healthz and /debug/probes")
	f.StringVar(&flags.LogLevel, "log-level", def.LogLevel, "debug, info, warn or error")
	f.BoolVar(&flags.Echo, "echo", def.Echo, "echo received bytes instead of discarding them")
	return cmd
}

// applyFlags overrides cfg with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg, flags *control.Config) {
	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Listen = flags.Listen
	}
	if f.Changed("backlog") {
		cfg.Backlog = flags.Backlog
	}
	if f.Changed("max-connections") {
		cfg.MaxConnections = flags.MaxConnections
	}
	if f.Changed("pass-rate") {
		cfg.PassRate = flags.PassRate
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr = flags.MetricsAddr
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if f.Changed("echo") {
		cfg.Echo = flags.Echo
	}
}

func serve(ctx context.Context, cfg *control.Config, logger *slog.Logger) (err error) {
	sys, err := transport.Init()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sys.Deinit())
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	probes := control.NewDebugProbes()
	probes.RegisterProbe("transport.backend", func() any { return sys.Backend() })

	var handler server.Handler = server.DiscardHandler{}
	if cfg.Echo {
		handler = server.EchoHandler{}
	}
	srv, err := server.New(sys,
		server.WithLogger(logger),
		server.WithMetrics(control.NewMetrics(control.MetricsConfig{Registry: reg})),
		server.WithProbes(probes),
		server.WithHandler(handler),
		server.WithMaxConnections(cfg.MaxConnections),
	)
	if err != nil {
		return err
	}
	if err := configure(srv, cfg, logger); err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, srv.Destroy())
	}()
	logger.Info("uhttpd listening",
		slog.String("addr", srv.ListenAddress().String()),
		slog.String("backend", sys.Backend()))

	if cfg.MetricsAddr != "" {
		admin := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           adminRouter(reg, probes),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = admin.Shutdown(shutdownCtx)
		}()
		logger.Info("admin endpoint", slog.String("addr", cfg.MetricsAddr))
	}

	return runPasses(ctx, srv, rate.NewLimiter(rate.Limit(cfg.PassRate), 1))
}

// configure applies the daemon configuration through the option interface.
func configure(srv *server.Server, cfg *control.Config, logger *slog.Logger) error {
	addr, err := cfg.BindAddr()
	if err != nil {
		return err
	}
	onError := func(code api.ErrorCode, desc string) {
		logger.Warn("reactor error", slog.String("code", code.String()), slog.String("description", desc))
	}
	for name, v := range map[api.OptionName]api.OptionValue{
		api.OptionBindAddr:  api.BindAddr(addr),
		api.OptionBacklog:   api.Backlog(cfg.Backlog),
		api.OptionErrorFunc: api.ErrorCallback(onError),
	} {
		if err := srv.SetOption(name, v); err != nil {
			return err
		}
	}
	return nil
}

// runPasses invokes one reactor pass per limiter token until ctx is done.
func runPasses(ctx context.Context, srv *server.Server, limiter *rate.Limiter) error {
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := srv.Poll(); err != nil {
			return err
		}
	}
}
