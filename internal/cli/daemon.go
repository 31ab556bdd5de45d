package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/pacer/internal/config"
	"github.com/roach88/pacer/internal/connectivity"
	"github.com/roach88/pacer/internal/syncer"
)

// DaemonOptions holds flags for the daemon command.
type DaemonOptions struct {
	*RootOptions
	MetricsAddr  string
	ProbeAddress string
}

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DaemonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep syncing and deliver time-based reminders",
		Long: `Run in the foreground until interrupted.

The daemon watches connectivity to the remote store and syncs whenever it
comes back, retries after failures, and delivers a reminder when no event
was logged for the configured reminder interval. Prometheus metrics are
served on --metrics-addr when set.

Example:
  pacer daemon --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics on this address (overrides config)")
	cmd.Flags().StringVar(&opts.ProbeAddress, "probe", "", "host:port probed for connectivity (overrides config)")

	return cmd
}

func runDaemon(opts *DaemonOptions, cmd *cobra.Command) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := openApp(cmd, opts.RootOptions, syncer.WithMetrics(syncer.NewMetrics(reg)))
	if err != nil {
		return err
	}
	defer a.close()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if a.pg != nil {
		if err := a.pg.Migrate(ctx); err != nil {
			a.logger.Warn("remote schema migration failed; will push once reachable", "error", err)
		}
		addr := opts.ProbeAddress
		if addr == "" {
			addr, err = probeAddress(a.cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to derive probe address", err)
			}
		}
		probe := connectivity.NewProbe(addr, a.cfg.Connectivity.ProbeInterval)
		probe.Timeout = a.cfg.Connectivity.ProbeTimeout
		probe.Logger = a.logger
		a.coord.Start(ctx, probe)
		a.logger.Info("watching connectivity", "address", addr)
	} else {
		a.logger.Warn("no remote store configured; records stay local")
	}

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = a.cfg.MetricsAddr
	}

	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.logger.Info("metrics listening", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	sched := &reminderScheduler{
		source: a.service,
		now:    time.Now,
		poll:   time.Minute,
		logger: a.logger,
	}
	g.Go(func() error {
		return sched.Run(gctx)
	})

	fmt.Fprintln(cmd.OutOrStdout(), "Daemon started. Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "daemon error", err)
	}
	a.logger.Info("daemon stopped gracefully")
	return nil
}

// probeAddress derives host:port of the remote store from its URL.
func probeAddress(cfg *config.Config) (string, error) {
	if cfg.Connectivity.ProbeAddress != "" {
		return cfg.Connectivity.ProbeAddress, nil
	}
	pgCfg, err := pgconn.ParseConfig(cfg.Remote.PostgresURL)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(pgCfg.Host, strconv.Itoa(int(pgCfg.Port))), nil
}

// reminderSource is the part of the service the scheduler drives.
type reminderSource interface {
	NextReminder(ctx context.Context) (time.Time, bool, error)
	FireTimeReminder(ctx context.Context) error
}

// reminderScheduler fires one time-based reminder per quiet period. The
// reminder time is anchored on the latest event, so logging anything
// moves it forward.
type reminderScheduler struct {
	source reminderSource
	now    func() time.Time
	poll   time.Duration
	logger *slog.Logger

	lastFired time.Time
}

// Run ticks until ctx is done.
func (s *reminderScheduler) Run(ctx context.Context) error {
	for {
		wait := s.tick(ctx)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// tick fires a due reminder and returns how long to sleep. Sleeps never
// exceed poll so new events and sessions are noticed.
func (s *reminderScheduler) tick(ctx context.Context) time.Duration {
	at, ok, err := s.source.NextReminder(ctx)
	if err != nil {
		s.logger.Error("next reminder failed", "error", err)
		return s.poll
	}
	if !ok || at.Equal(s.lastFired) {
		return s.poll
	}

	wait := at.Sub(s.now())
	if wait > 0 {
		return min(wait, s.poll)
	}

	if err := s.source.FireTimeReminder(ctx); err != nil {
		s.logger.Error("time reminder failed", "error", err)
		return s.poll
	}
	s.lastFired = at
	return s.poll
}
