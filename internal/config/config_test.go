package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "skillspick", cfg.Service.Name)
	assert.Equal(t, 8090, cfg.Service.Port)
	assert.Equal(t, 4*time.Minute, cfg.Ingest.MaxRunDuration)
	assert.Equal(t, 6, cfg.Ingest.WriteConcurrency)
	assert.Equal(t, 50, cfg.Ingest.ClawHub.PageSize)
	assert.Equal(t, 50, cfg.Ingest.GitHub.MaxDirs)
	assert.Equal(t, 4000, cfg.Ingest.Awesome.MaxLinks)
	assert.Equal(t, 100, cfg.Ingest.SkillsMP.Limit)
	assert.Equal(t, 5000, cfg.Ingest.SkillsMP.MaxItems)
	assert.Equal(t, "recent", cfg.Ingest.SkillsMP.SortBy)
	assert.Len(t, cfg.Ingest.GitHub.Trees, 3)
	assert.Len(t, cfg.Ingest.Awesome.Lists, 3)
	assert.True(t, cfg.Ingest.GitHub.FetchSkillMDEnabled())
	assert.Contains(t, cfg.Ingest.SkillsMP.Queries, "a")
	assert.Contains(t, cfg.Ingest.SkillsMP.Queries, "9")
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `
service:
  port: 9000
ingest:
  max_run_duration: 90s
  github:
    fetch_skill_md: false
    trees:
      - owner: acme
        repo: skills
        dir_path: skills
        ref: main
  skillsmp:
    queries: [x, y]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("MAX_DIRS", "7")
	t.Setenv("QUERIES", "alpha, ,beta")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/skills?sslmode=disable")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Service.Port)
	assert.Equal(t, 90*time.Second, cfg.Ingest.MaxRunDuration)
	assert.Equal(t, 7, cfg.Ingest.GitHub.MaxDirs)
	assert.False(t, cfg.Ingest.GitHub.FetchSkillMDEnabled())
	require.Len(t, cfg.Ingest.GitHub.Trees, 1)
	assert.Equal(t, "acme", cfg.Ingest.GitHub.Trees[0].Owner)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Ingest.SkillsMP.Queries)
	assert.Equal(t, "postgres://u:p@db:5432/skills?sslmode=disable", cfg.Database.DSN())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.Config)
		wantField string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "bad port", mutate: func(c *config.Config) { c.Service.Port = 70000 }, wantField: "service.port"},
		{name: "bad log level", mutate: func(c *config.Config) { c.Logging.Level = "loud" }, wantField: "logging.level"},
		{
			name:      "zero write concurrency",
			mutate:    func(c *config.Config) { c.Ingest.WriteConcurrency = 0 },
			wantField: "ingest.write_concurrency",
		},
		{
			name:      "missing host without url",
			mutate:    func(c *config.Config) { c.Database.Host = "" },
			wantField: "database.host",
		},
		{
			name: "url makes host optional",
			mutate: func(c *config.Config) {
				c.Database.Host = ""
				c.Database.URL = "postgres://localhost/skills"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			validateErr := cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, validateErr)
				return
			}
			var vErr *config.ValidationError
			require.ErrorAs(t, validateErr, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestDatabaseConfig_DSNFromFields(t *testing.T) {
	d := config.DatabaseConfig{
		Host: "h", Port: 5433, User: "u", Password: "p", Database: "db", SSLMode: "require",
	}
	assert.Equal(t, "host=h port=5433 user=u password=p dbname=db sslmode=require", d.DSN())
}
