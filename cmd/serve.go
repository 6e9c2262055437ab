package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/javainthinking/skillspick/internal/api"
	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/profiling"
	"github.com/javainthinking/skillspick/internal/scheduler"
	"github.com/javainthinking/skillspick/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled crawls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	prof, err := profiling.Start(a.cfg.Profiling, a.cfg.Service, a.log)
	if err != nil {
		a.log.Warn("Continuous profiling unavailable", logger.Error(err))
	}
	defer func() { _ = prof.Stop() }()

	runner := a.runner()
	handler := api.NewHandler(a.repository(), a.checkpoints(), runner, a.importer(), a.log)
	router := api.NewRouter(api.RouterConfig{
		ServiceName:    a.cfg.Service.Name,
		ServiceVersion: Version,
		IngestSecret:   a.cfg.Ingest.Secret,
		Debug:          a.cfg.Service.Debug,
		Metrics:        a.instruments().Handler(),
		Checks: map[string]api.HealthChecker{
			"database": func(ctx context.Context) error {
				db, dbErr := a.db().DB(ctx)
				if dbErr != nil {
					return dbErr
				}
				return db.PingContext(ctx)
			},
		},
	}, handler, a.log)

	sched := scheduler.New(runner, a.log)
	if applyErr := sched.Apply(a.cfg.Schedule); applyErr != nil {
		return applyErr
	}
	sched.Start(ctx)
	defer func() { <-sched.Stop().Done() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.New(server.Config{Port: a.cfg.Service.Port}, router, a.log).Run(gctx)
	})
	if _, statErr := os.Stat(a.configPath); statErr == nil {
		g.Go(func() error {
			return scheduler.WatchFile(gctx, a.configPath, scheduler.DefaultDebounce, func() {
				a.reloadSchedule(sched)
			}, a.log)
		})
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		a.log.Warn("Config file not watched", logger.Error(statErr))
	}

	return g.Wait()
}

// reloadSchedule re-reads the config file and applies its schedule block.
// Other settings need a restart.
func (a *app) reloadSchedule(sched *scheduler.Scheduler) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.log.Error("Config reload failed", logger.Error(err))
		return
	}
	if applyErr := sched.Apply(cfg.Schedule); applyErr != nil {
		a.log.Error("Schedule reload rejected", logger.Error(applyErr))
		return
	}
	a.log.Info("Schedule reloaded", logger.Int("entries", len(sched.Entries())))
}
