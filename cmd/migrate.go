package cmd

import (
	"github.com/spf13/cobra"

	"github.com/javainthinking/skillspick/internal/database"
)

func newMigrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the catalog schema",
	}

	withMigrator := func(fn func(*cobra.Command, *database.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			mg, err := database.NewMigrator(a.cfg.Database, a.log)
			if err != nil {
				return err
			}
			defer func() { _ = mg.Close() }()
			return fn(cmd, mg)
		}
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(_ *cobra.Command, mg *database.Migrator) error {
			return mg.Down(steps)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(_ *cobra.Command, mg *database.Migrator) error {
				return mg.Up()
			}),
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, mg *database.Migrator) error {
				v, dirty, err := mg.Version()
				if err != nil {
					return err
				}
				suffix := ""
				if dirty {
					suffix = " (dirty)"
				}
				printf(cmd.OutOrStdout(), "schema version %d%s\n", v, suffix)
				return nil
			}),
		},
	)
	return cmd
}
