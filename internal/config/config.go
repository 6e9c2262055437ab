// Package config loads skillspick configuration from an optional YAML file,
// .env files and environment variables.
package config

import (
	"fmt"
	"time"
)

// Default service configuration values.
const (
	defaultServiceName    = "skillspick"
	defaultServiceVersion = "1.0.0"
	defaultServicePort    = 8090
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultConfigFile     = "config.yml"
)

// Default database configuration values.
const (
	defaultDBHost          = "localhost"
	defaultDBPort          = 5432
	defaultDBUser          = "postgres"
	defaultDBName          = "skillspick"
	defaultDBSSLMode       = "disable"
	defaultDBMaxConns      = 10
	defaultDBMaxIdleConns  = 5
	defaultDBConnLifetimeM = 30
)

// Default ingest configuration values.
const (
	defaultMaxRunDuration   = 4 * time.Minute
	defaultWriteConcurrency = 6
	defaultHTTPTimeout      = 30 * time.Second
	defaultRateLimit        = 5.0
	defaultRateBurst        = 5
	defaultUserAgent        = "skillspick-ingest"

	defaultClawHubURL      = "https://wry-manatee-359.convex.cloud"
	defaultClawHubPageSize = 50
	defaultClawHubMaxPages = 20
	defaultClawHubClient   = "skillspick-ingest-clawhub"

	defaultGitHubAPIURL = "https://api.github.com"
	defaultGitHubRawURL = "https://raw.githubusercontent.com"
	defaultMaxDirs      = 50

	defaultMaxSources = 3
	defaultMaxLinks   = 4000

	defaultSkillsMPURL      = "https://skillsmp.com"
	defaultSkillsMPLimit    = 100
	defaultMaxPagesPerQuery = 50
	defaultMaxItems         = 5000
	defaultSkillsMPSortBy   = "recent"
)

// Config holds the application configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

// ServiceConfig holds service identity and runtime settings.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"SKILLSPICK_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"       yaml:"debug"`
}

// DatabaseConfig holds PostgreSQL connection settings. URL, when set, wins
// over the individual fields.
type DatabaseConfig struct {
	URL                   string        `env:"DATABASE_URL"      yaml:"url"`
	Host                  string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port                  int           `env:"POSTGRES_PORT"     yaml:"port"`
	User                  string        `env:"POSTGRES_USER"     yaml:"user"`
	Password              string        `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database              string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode               string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxConnections        int           `yaml:"max_connections"`
	MaxIdleConns          int           `yaml:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// IngestConfig holds crawl budgets, credentials and upstream endpoints.
type IngestConfig struct {
	Secret           string         `env:"INGEST_SECRET"           yaml:"secret"`
	MaxRunDuration   time.Duration  `env:"INGEST_MAX_RUN_DURATION" yaml:"max_run_duration"`
	WriteConcurrency int            `env:"WRITE_CONCURRENCY"       yaml:"write_concurrency"`
	HTTP             HTTPConfig     `yaml:"http"`
	ClawHub          ClawHubConfig  `yaml:"clawhub"`
	GitHub           GitHubConfig   `yaml:"github"`
	Awesome          AwesomeConfig  `yaml:"awesome"`
	SkillsMP         SkillsMPConfig `yaml:"skillsmp"`
}

// HTTPConfig configures the shared upstream HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `env:"FETCH_TIMEOUT"    yaml:"timeout"`
	RateLimit float64       `env:"FETCH_RATE_LIMIT" yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	UserAgent string        `yaml:"user_agent"`
}

// ClawHubConfig configures the paginated listing crawler.
type ClawHubConfig struct {
	BaseURL    string `env:"CLAWHUB_CONVEX_URL" yaml:"base_url"`
	PageSize   int    `yaml:"page_size"`
	MaxPages   int    `env:"MAX_PAGES"          yaml:"max_pages"`
	ClientName string `yaml:"client_name"`
}

// GitHubConfig configures the directory tree crawler and raw fetches.
type GitHubConfig struct {
	Token        string       `env:"GITHUB_TOKEN" yaml:"token"`
	APIBaseURL   string       `yaml:"api_base_url"`
	RawBaseURL   string       `yaml:"raw_base_url"`
	MaxDirs      int          `env:"MAX_DIRS"     yaml:"max_dirs"`
	FetchSkillMD *bool        `yaml:"fetch_skill_md"`
	Trees        []TreeSource `yaml:"trees"`
}

// TreeSource is one repository directory whose subdirectories are skills.
type TreeSource struct {
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	DirPath string `yaml:"dir_path"`
	Ref     string `yaml:"ref"`
}

// AwesomeConfig configures the markdown link-list crawler.
type AwesomeConfig struct {
	MaxSources int          `env:"MAX_SOURCES" yaml:"max_sources"`
	MaxLinks   int          `yaml:"max_links"`
	Lists      []ListSource `yaml:"lists"`
}

// ListSource is one markdown document listing skill repositories.
type ListSource struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Path  string `yaml:"path"`
	Ref   string `yaml:"ref"`
}

// SkillsMPConfig configures the search API crawler.
type SkillsMPConfig struct {
	APIKey           string   `env:"SKILLSMP_API_KEY" yaml:"api_key"`
	BaseURL          string   `yaml:"base_url"`
	Limit            int      `env:"LIMIT"            yaml:"limit"`
	MaxPagesPerQuery int      `env:"MAX_PAGES_PER_Q"  yaml:"max_pages_per_query"`
	MaxItems         int      `env:"MAX_ITEMS"        yaml:"max_items"`
	Queries          []string `env:"QUERIES"          yaml:"queries"`
	SortBy           string   `yaml:"sort_by"`
}

// ScheduleConfig maps crawler kinds to cron specs for `serve`.
type ScheduleConfig struct {
	Enabled bool              `env:"SCHEDULE_ENABLED" yaml:"enabled"`
	Crawls  map[string]string `yaml:"crawls"`
}

// ProfilingConfig toggles continuous profiling.
type ProfilingConfig struct {
	Enabled   bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"enabled"`
	ServerURL string `env:"PYROSCOPE_SERVER_URL"        yaml:"server_url"`
}

// Load loads configuration from a YAML file, applies defaults, then env overrides.
func Load(path string) (*Config, error) {
	cfg, loadErr := LoadWithDefaults(path, setDefaults)
	if loadErr != nil {
		return nil, fmt.Errorf("load config: %w", loadErr)
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// DefaultPath returns CONFIG_PATH or config.yml.
func DefaultPath() string {
	return GetConfigPath(defaultConfigFile)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}

	if c.Database.URL == "" {
		if c.Database.Host == "" {
			return &ValidationError{Field: "database.host", Message: "is required when database.url is empty"}
		}
		if c.Database.Database == "" {
			return &ValidationError{Field: "database.database", Message: "is required when database.url is empty"}
		}
	}

	if err := ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	checks := []struct {
		field string
		value int
	}{
		{"ingest.write_concurrency", c.Ingest.WriteConcurrency},
		{"ingest.clawhub.page_size", c.Ingest.ClawHub.PageSize},
		{"ingest.clawhub.max_pages", c.Ingest.ClawHub.MaxPages},
		{"ingest.github.max_dirs", c.Ingest.GitHub.MaxDirs},
		{"ingest.awesome.max_sources", c.Ingest.Awesome.MaxSources},
		{"ingest.awesome.max_links", c.Ingest.Awesome.MaxLinks},
		{"ingest.skillsmp.limit", c.Ingest.SkillsMP.Limit},
		{"ingest.skillsmp.max_pages_per_query", c.Ingest.SkillsMP.MaxPagesPerQuery},
		{"ingest.skillsmp.max_items", c.Ingest.SkillsMP.MaxItems},
	}
	for _, check := range checks {
		if err := ValidatePositive(check.field, check.value); err != nil {
			return err
		}
	}

	if c.Ingest.MaxRunDuration <= 0 {
		return &ValidationError{Field: "ingest.max_run_duration", Message: "must be positive"}
	}

	return nil
}

// FetchSkillMDEnabled reports whether tree entries are enriched from SKILL.md.
func (g GitHubConfig) FetchSkillMDEnabled() bool {
	return g.FetchSkillMD == nil || *g.FetchSkillMD
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setLoggingDefaults(&cfg.Logging)
	setIngestDefaults(&cfg.Ingest)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnectionMaxLifetime == 0 {
		d.ConnectionMaxLifetime = defaultDBConnLifetimeM * time.Minute
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
}

func setIngestDefaults(in *IngestConfig) {
	if in.MaxRunDuration == 0 {
		in.MaxRunDuration = defaultMaxRunDuration
	}
	if in.WriteConcurrency == 0 {
		in.WriteConcurrency = defaultWriteConcurrency
	}

	if in.HTTP.Timeout == 0 {
		in.HTTP.Timeout = defaultHTTPTimeout
	}
	if in.HTTP.RateLimit == 0 {
		in.HTTP.RateLimit = defaultRateLimit
	}
	if in.HTTP.Burst == 0 {
		in.HTTP.Burst = defaultRateBurst
	}
	if in.HTTP.UserAgent == "" {
		in.HTTP.UserAgent = defaultUserAgent
	}

	setClawHubDefaults(&in.ClawHub)
	setGitHubDefaults(&in.GitHub)
	setAwesomeDefaults(&in.Awesome)
	setSkillsMPDefaults(&in.SkillsMP)
}

func setClawHubDefaults(c *ClawHubConfig) {
	if c.BaseURL == "" {
		c.BaseURL = defaultClawHubURL
	}
	if c.PageSize == 0 {
		c.PageSize = defaultClawHubPageSize
	}
	if c.MaxPages == 0 {
		c.MaxPages = defaultClawHubMaxPages
	}
	if c.ClientName == "" {
		c.ClientName = defaultClawHubClient
	}
}

func setGitHubDefaults(g *GitHubConfig) {
	if g.APIBaseURL == "" {
		g.APIBaseURL = defaultGitHubAPIURL
	}
	if g.RawBaseURL == "" {
		g.RawBaseURL = defaultGitHubRawURL
	}
	if g.MaxDirs == 0 {
		g.MaxDirs = defaultMaxDirs
	}
	if len(g.Trees) == 0 {
		g.Trees = []TreeSource{
			{Owner: "openai", Repo: "skills", DirPath: "skills/.curated", Ref: "main"},
			{Owner: "anthropics", Repo: "skills", DirPath: "skills", Ref: "main"},
			{Owner: "google-labs-code", Repo: "stitch-skills", DirPath: "skills", Ref: "main"},
		}
	}
}

func setAwesomeDefaults(a *AwesomeConfig) {
	if a.MaxSources == 0 {
		a.MaxSources = defaultMaxSources
	}
	if a.MaxLinks == 0 {
		a.MaxLinks = defaultMaxLinks
	}
	if len(a.Lists) == 0 {
		a.Lists = []ListSource{
			{Owner: "ComposioHQ", Repo: "awesome-claude-skills", Path: "README.md"},
			{Owner: "VoltAgent", Repo: "awesome-openclaw-skills", Path: "README.md"},
			{Owner: "VoltAgent", Repo: "awesome-agent-skills", Path: "README.md"},
		}
	}
}

func setSkillsMPDefaults(s *SkillsMPConfig) {
	if s.BaseURL == "" {
		s.BaseURL = defaultSkillsMPURL
	}
	if s.Limit == 0 {
		s.Limit = defaultSkillsMPLimit
	}
	if s.MaxPagesPerQuery == 0 {
		s.MaxPagesPerQuery = defaultMaxPagesPerQuery
	}
	if s.MaxItems == 0 {
		s.MaxItems = defaultMaxItems
	}
	if len(s.Queries) == 0 {
		s.Queries = DefaultQueries()
	}
	if s.SortBy == "" {
		s.SortBy = defaultSkillsMPSortBy
	}
}

// DefaultQueries is the search vocabulary used to approximate a full crawl:
// single letters, digits and a few keyword seeds.
func DefaultQueries() []string {
	queries := make([]string, 0, 26+10+5)
	for c := 'a'; c <= 'z'; c++ {
		queries = append(queries, string(c))
	}
	for c := '0'; c <= '9'; c++ {
		queries = append(queries, string(c))
	}
	return append(queries, "-", "_", "api", "tool", "skill")
}
