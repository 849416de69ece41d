package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/skobkin/qlsend/internal/bus"
	"github.com/skobkin/qlsend/internal/config"
	"github.com/skobkin/qlsend/internal/logging"
	"github.com/skobkin/qlsend/internal/metrics"
	"github.com/skobkin/qlsend/internal/persistence"
	"github.com/skobkin/qlsend/internal/printer"
	"github.com/skobkin/qlsend/internal/status"
	"github.com/skobkin/qlsend/internal/transport"
)

// Options adjust Initialize for a single process run.
type Options struct {
	// ConfigFile overrides the config location from Paths.
	ConfigFile string
	// Console receives log output; defaults to stderr.
	Console io.Writer
	// Override is applied to the loaded config before validation, e.g. command line flags.
	Override func(*config.AppConfig)
	// Registry replaces the built-in transports.
	Registry *transport.Registry
}

// Runtime wires the printer service with its supporting infrastructure.
type Runtime struct {
	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB
	JobRepo    *persistence.JobRepo
	Metrics    *metrics.Recorder
	Registry   *transport.Registry
	Printer    *printer.Service
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}
	paths = paths.WithConfigFile(opts.ConfigFile)

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
		cfg.FillMissingDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return initialize(parent, paths, cfg, opts)
}

func initialize(parent context.Context, paths Paths, cfg config.AppConfig, opts Options) (*Runtime, error) {
	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager(opts.Console)
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()

		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Debug("starting qlsend runtime", "version", BuildVersion(), "revision", BuildRevision(), "build_date", BuildDateYMD())

	var serviceOpts []printer.Option
	if cfg.History.Enabled {
		db, err := persistence.Open(ctx, paths.DBFile)
		if err != nil {
			_ = rt.Close()

			return nil, err
		}
		rt.DB = db
		rt.JobRepo = persistence.NewJobRepo(db)
		serviceOpts = append(serviceOpts, printer.WithHistory(rt.JobRepo))

		if removed, err := persistence.PruneHistory(ctx, db, cfg.History.Keep); err != nil {
			slog.Warn("prune job history", "error", err)
		} else if removed > 0 {
			slog.Debug("pruned job history", "removed", removed)
		}
	}

	rt.Metrics = metrics.New()
	serviceOpts = append(serviceOpts, printer.WithMetrics(rt.Metrics))

	rt.Bus = bus.New(logMgr.Logger("bus"))
	rt.Registry = opts.Registry
	if rt.Registry == nil {
		rt.Registry = transport.DefaultRegistry(cfg.TransportOptions())
	}
	rt.Printer = printer.NewService(
		logMgr.Logger("printer"),
		rt.Bus,
		rt.Registry,
		status.BrotherQL{},
		printer.Config{
			DefaultTransport: cfg.Printer.DefaultTransport,
			Timeout:          cfg.Printer.Timeout,
			PollInterval:     cfg.Printer.PollInterval,
		},
		serviceOpts...,
	)

	return rt, nil
}

func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	var errs []error
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if r.LogManager != nil {
		if err := r.LogManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}

	return errors.Join(errs...)
}
