package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/javainthinking/skillspick/internal/catalog"
	"github.com/javainthinking/skillspick/internal/export"
)

const descriptionWidth = 60

func newSearchCommand(a *app) *cobra.Command {
	var p catalog.SearchParams

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				p.Query = args[0]
			}
			if p.Sort != catalog.SortRecent && p.Sort != catalog.SortStars {
				return fmt.Errorf("--sort must be %q or %q", catalog.SortRecent, catalog.SortStars)
			}

			res, err := a.repository().Search(cmd.Context(), p)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Slug", "Name", "Stars", "★", "Description"})
			for _, s := range res.Skills {
				mark := ""
				if s.Highlighted {
					mark = "★"
				}
				t.AppendRow(table.Row{s.Slug, s.Name, s.Stars, mark, text.Trim(s.Description, descriptionWidth)})
			}
			t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d of %d", len(res.Skills), res.Total)})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Sort, "sort", catalog.SortRecent, "sort order: recent or stars")
	cmd.Flags().IntVar(&p.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&p.Offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&p.HighlightedOnly, "highlighted", false, "only highlighted skills")
	return cmd
}

func newHighlightCommand(a *app) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "highlight <skill-id>",
		Short: "Mark a skill as highlighted (or clear it with --off)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("invalid skill id %q: %w", args[0], err)
			}

			skill, err := a.repository().SetHighlighted(cmd.Context(), args[0], !off)
			if errors.Is(err, catalog.ErrSkillNotFound) {
				return fmt.Errorf("no skill with id %s", args[0])
			}
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s highlighted=%t\n", skill.Slug, skill.Highlighted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "clear the highlight")
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <github-url>",
		Short: "Import one skill folder from a GitHub repo, tree or blob URL",
		Example: `  skillspick import https://github.com/anthropics/skills/tree/main/skills/pdf
  skillspick import https://github.com/acme/my-skill`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.importer().Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			verb := "Imported"
			if res.Existing {
				verb = "Already in catalog:"
			}
			printf(cmd.OutOrStdout(), "%s %s (%s)\n", verb, res.Skill.Name, res.Skill.Slug)
			return nil
		},
	}
}

func newBackfillCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "One-off catalog repairs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clawhub",
		Short: "Point ClawHub skills at their openclaw/skills mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.repository().BackfillClawHub(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Updated %d skills\n", n)
			return nil
		},
	})
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog to an .xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !strings.HasSuffix(strings.ToLower(out), ".xlsx") {
				return fmt.Errorf("--out must name an .xlsx file, got %q", out)
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			w := bufio.NewWriter(f)

			n, err := export.Write(cmd.Context(), a.repository(), w)
			if err == nil {
				err = w.Flush()
			}
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			printf(cmd.OutOrStdout(), "Exported %d skills to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "catalog.xlsx", "output file")
	return cmd
}

var _ export.Source = (*catalog.Repository)(nil)
