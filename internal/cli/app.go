package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pacer/internal/config"
	"github.com/roach88/pacer/internal/core"
	"github.com/roach88/pacer/internal/reminder"
	"github.com/roach88/pacer/internal/remote"
	"github.com/roach88/pacer/internal/remote/postgres"
	"github.com/roach88/pacer/internal/store"
	"github.com/roach88/pacer/internal/syncer"
)

// app holds the collaborators a command runs against.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	gateway remote.Gateway
	pg      *postgres.Gateway
	coord   *syncer.Coordinator
	service *core.Service
	out     *OutputFormatter
}

// loadConfig reads --config (required when given) or the optional
// default file, then applies the --db override.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path, required := opts.ConfigPath, true
	if path == "" {
		path, required = config.DefaultPath, false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// newLogger builds the stderr text logger. --verbose forces Debug.
func newLogger(w io.Writer, level slog.Level, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp loads configuration, opens the local store and wires the
// syncer and service. Without a remote URL the syncer starts offline so
// records stay dirty until one is configured.
func openApp(cmd *cobra.Command, opts *RootOptions, syncOpts ...syncer.Option) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, opts.Verbose)
	logger.Debug("configuration loaded", "path", cfg.Path, "database", cfg.Database, "user_id", cfg.UserID)

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		gateway: remote.Disabled{},
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}

	syncOpts = append([]syncer.Option{
		syncer.WithLogger(logger),
		syncer.WithBackOff(syncer.NewExponentialBackOff(cfg.Sync.RetryInitial, cfg.Sync.RetryMax)),
	}, syncOpts...)

	if cfg.Remote.PostgresURL != "" {
		pg, err := postgres.Connect(ctx, cfg.Remote.PostgresURL)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to configure remote store", err)
		}
		a.pg, a.gateway = pg, pg
	} else {
		logger.Debug("no remote store configured; sync disabled")
		syncOpts = append(syncOpts, syncer.WithOffline())
	}

	a.coord = syncer.New(st, a.gateway, cfg.UserID, syncOpts...)
	a.service = core.New(st, a.coord, a.gateway, cfg.UserID,
		core.WithLogger(logger),
		core.WithNotifier(reminder.LogNotifier{Logger: logger}),
		core.WithDefaults(cfg.Defaults),
	)

	if err := a.coord.Refresh(ctx); err != nil {
		a.close()
		return nil, WrapExitError(ExitCommandError, "failed to count pending records", err)
	}
	if err := a.service.Prime(ctx); err != nil {
		a.close()
		return nil, WrapExitError(ExitCommandError, "failed to load active session", err)
	}
	return a, nil
}

// flushTimeout bounds how long a one-shot command waits for the sync pass
// its mutation started. Unfinished records stay dirty for the next run.
const flushTimeout = 10 * time.Second

// close lets background sync passes finish, then releases resources.
func (a *app) close() {
	done := make(chan struct{})
	go func() {
		a.coord.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(flushTimeout):
		a.logger.Warn("sync still running at exit; records stay pending", "timeout", flushTimeout)
	}
	a.coord.Close()
	if a.pg != nil {
		a.pg.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// run opens the app, calls fn and closes the app again.
func run(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}
