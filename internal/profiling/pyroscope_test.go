package profiling_test

import (
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/profiling"
)

func TestStart_Disabled(t *testing.T) {
	p, err := profiling.Start(config.ProfilingConfig{}, config.ServiceConfig{Name: "skillspick"}, nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, p.Stop())
}

func TestConfig(t *testing.T) {
	cfg := profiling.Config(
		config.ProfilingConfig{Enabled: true},
		config.ServiceConfig{Name: "skillspick", Version: "1.2.3"},
	)

	assert.Equal(t, "skillspick", cfg.ApplicationName)
	assert.Equal(t, "http://pyroscope:4040", cfg.ServerAddress)
	assert.Equal(t, "1.2.3", cfg.Tags["version"])
	assert.Contains(t, cfg.ProfileTypes, pyroscope.ProfileCPU)
}
