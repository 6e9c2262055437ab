package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/javainthinking/skillspick/internal/checkpoint"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List crawl checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cps, err := a.checkpoints().List(cmd.Context())
			if err != nil {
				return err
			}
			if len(cps) == 0 {
				printf(cmd.OutOrStdout(), "No checkpoints recorded\n")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Kind", "Name", "Page", "Upserted", "Done", "Updated"})
			for _, cp := range cps {
				t.AppendRow(table.Row{
					cp.SourceKind, cp.SourceName, cp.PageNo, cp.UpsertedTotal,
					yesNo(cp.Done), cp.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			t.Render()
			return nil
		},
	}
}

func newCheckpointCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage crawl checkpoints",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <kind> <name>",
		Short: "Clear a checkpoint so its source is crawled from the start",
		Example: `  skillspick checkpoint reset clawhub ClawHub
  skillspick checkpoint reset github_tree anthropics/skills:skills
  skillspick checkpoint reset github_list __runner__`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.checkpoints().Reset(cmd.Context(), args[0], args[1])
			if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
				return fmt.Errorf("no checkpoint for %s/%s", args[0], args[1])
			}
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Checkpoint %s/%s reset\n", args[0], args[1])
			return nil
		},
	})
	return cmd
}
