package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"github.com/javainthinking/skillspick/internal/catalog"
	"github.com/javainthinking/skillspick/internal/checkpoint"
	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/crawler"
	"github.com/javainthinking/skillspick/internal/database"
	"github.com/javainthinking/skillspick/internal/fetcher"
	"github.com/javainthinking/skillspick/internal/importer"
	"github.com/javainthinking/skillspick/internal/logger"
	"github.com/javainthinking/skillspick/internal/metrics"
)

// app holds the configuration and lazily built collaborators shared by
// subcommands.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
	log        logger.Logger

	handle   *database.Handle
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	fetch    *fetcher.Client
}

func (a *app) db() *database.Handle {
	if a.handle == nil {
		a.handle = database.NewHandle(a.cfg.Database, a.log)
	}
	return a.handle
}

func (a *app) instruments() *metrics.Metrics {
	if a.metrics == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.New(a.registry)
	}
	return a.metrics
}

func (a *app) fetcher() *fetcher.Client {
	if a.fetch == nil {
		h := a.cfg.Ingest.HTTP
		a.fetch = fetcher.New(
			fetcher.WithTimeout(h.Timeout),
			fetcher.WithRateLimit(h.RateLimit, h.Burst),
			fetcher.WithUserAgent(h.UserAgent),
			fetcher.WithLogger(a.log),
			fetcher.WithRecorder(a.instruments()),
		)
	}
	return a.fetch
}

func (a *app) repository() *catalog.Repository {
	return catalog.NewRepository(a.db())
}

func (a *app) checkpoints() *checkpoint.Store {
	return checkpoint.NewStore(a.db())
}

func (a *app) merger() *catalog.Merger {
	return catalog.NewMerger(a.db(), a.log, catalog.WithRetryObserver(a.instruments()))
}

func (a *app) runner() *crawler.Runner {
	return crawler.NewFromConfig(a.cfg.Ingest, crawler.Deps{
		Fetcher:     a.fetcher(),
		Merger:      a.merger(),
		Checkpoints: a.checkpoints(),
		Log:         a.log,
	}, crawler.WithRunObserver(a.instruments()))
}

func (a *app) importer() *importer.Importer {
	return importer.New(a.cfg.Ingest.GitHub, a.fetcher(), a.repository(), a.merger(), a.log)
}

func (a *app) close() {
	if a.handle != nil {
		if err := a.handle.Close(); err != nil {
			a.log.Warn("Close database", logger.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM so long commands stop at
// their next checkpoint.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
