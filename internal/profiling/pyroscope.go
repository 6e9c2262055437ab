// Package profiling starts Pyroscope continuous profiling for long-running
// processes.
package profiling

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/logger"
)

const defaultServerURL = "http://pyroscope:4040"

// Profiler wraps a running Pyroscope session. A nil *Profiler is valid and
// stops as a no-op.
type Profiler struct {
	profiler *pyroscope.Profiler
}

// Start begins continuous profiling when cfg.Enabled. It returns a nil
// Profiler when disabled.
func Start(cfg config.ProfilingConfig, svc config.ServiceConfig, log logger.Logger) (*Profiler, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if log == nil {
		log = logger.NewNop()
	}

	pcfg := Config(cfg, svc)
	p, err := pyroscope.Start(pcfg)
	if err != nil {
		return nil, fmt.Errorf("start pyroscope: %w", err)
	}

	log.Info("Continuous profiling started",
		logger.String("application", pcfg.ApplicationName),
		logger.String("server", pcfg.ServerAddress),
	)
	return &Profiler{profiler: p}, nil
}

// Config builds the pyroscope configuration for svc.
func Config(cfg config.ProfilingConfig, svc config.ServiceConfig) pyroscope.Config {
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = defaultServerURL
	}

	return pyroscope.Config{
		ApplicationName: svc.Name,
		ServerAddress:   serverURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"version":    svc.Version,
			"hostname":   hostname(),
			"go_version": runtime.Version(),
		},
	}
}

// Stop flushes and stops the profiler.
func (p *Profiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
