// Package cmd implements the skillspick command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/javainthinking/skillspick/internal/config"
	"github.com/javainthinking/skillspick/internal/logger"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

const envPrefix = "SKILLSPICK"

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "skillspick",
		Short:         "Skill catalog ingestion pipeline",
		Long:          `Crawls ClawHub, GitHub skill trees, awesome lists and SkillsMP into one deduplicated Postgres catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	flags.Bool("debug", false, "enable debug mode and debug logging")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	for _, name := range []string{"config", "debug", "log-level"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newCrawlCommand(a),
		newStatusCommand(a),
		newCheckpointCommand(a),
		newSearchCommand(a),
		newMigrateCommand(a),
		newBackfillCommand(a),
		newImportCommand(a),
		newHighlightCommand(a),
		newExportCommand(a),
		newServeCommand(a),
		newVersionCommand(),
	)
	return root
}

// init loads configuration and the logger once flags are parsed.
func (a *app) init() error {
	path := a.v.GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}
	a.configPath = path

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.v.GetBool("debug") {
		cfg.Service.Debug = true
		cfg.Logging.Level = "debug"
	}
	if level := a.v.GetString("log-level"); level != "" {
		if lvlErr := config.ValidateLogLevel(level); lvlErr != nil {
			return lvlErr
		}
		cfg.Logging.Level = level
	}
	a.cfg = cfg

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.log = log.With(logger.String("service", cfg.Service.Name))
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// Skips config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		PersistentPostRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skillspick version %s\n", Version)
		},
	}
}

// exitCode maps an error to a process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// Main runs the CLI and exits with a status derived from the error.
func Main() {
	err := Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
