package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/termbase/internal/config"
	"github.com/roach88/termbase/internal/engine"
	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/store/badgerstore"
	"github.com/roach88/termbase/internal/term"
)

// Backend is the store a command runs against. The SQLite, badger and
// in-memory stores all satisfy it.
type Backend interface {
	engine.Store
	engine.Batcher
	All(ctx context.Context) ([]*term.Term, error)
	Journal(ctx context.Context, after int64, limit int) ([]store.JournalEntry, error)
	History(ctx context.Context, name string) ([]store.JournalEntry, error)
	Close() error
}

// memoryBackend lives only as long as the process.
type memoryBackend struct {
	*store.Memory
}

func (memoryBackend) Close() error { return nil }

// session is one command's view of the configured knowledge base.
type session struct {
	cfg     config.Config
	backend Backend
	engine  *engine.Engine
	logger  *slog.Logger
	out     *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// resolveConfig loads the config file and applies flag overrides.
func resolveConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.DB != "" {
		cfg.Path = opts.DB
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	switch cfg.Backend {
	case config.BackendSQLite, config.BackendBadger, config.BackendMemory:
	default:
		return config.Config{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg. --verbose forces
// debug level.
func newLogger(cfg config.Config, verbose bool, w io.Writer) *slog.Logger {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openBackend opens the store selected by cfg.
func openBackend(cfg config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		st, err := store.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendBadger:
		bcfg := badgerstore.DefaultConfig(cfg.Path)
		bcfg.Logger = logger.With("component", "badger")
		st, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendMemory:
		return memoryBackend{store.NewMemory()}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// openSession resolves config, opens the backend and builds an engine
// over it. Failures are reported through the formatter and returned as
// command errors.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd)

	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, err, nil)
	}
	logger := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())

	out.VerboseLog("opening %s store at %s", cfg.Backend, cfg.Path)
	backend, err := openBackend(cfg, logger)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeBackend, err, nil)
	}

	eng := engine.New(backend,
		engine.WithLogger(logger),
		engine.WithIDGenerator(idGenerator(opts)),
	)
	return &session{cfg: cfg, backend: backend, engine: eng, logger: logger, out: out}, nil
}

// Close closes the backend, logging any error.
func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing store", "error", err)
	}
}

// commandContext returns the command's context, or Background when run outside
// cobra's Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
