package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/javainthinking/skillspick/internal/crawler"
)

const crawlAll = "all"

func newCrawlCommand(a *app) *cobra.Command {
	var (
		maxUnits    int
		maxDuration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "crawl <clawhub|github_tree|github_list|skillsmp|all>",
		Short: "Run one bounded crawl",
		Long: `Runs one bounded invocation of a crawler, or of every crawler in turn
with "all". Progress is checkpointed, so repeated invocations walk each
source to completion.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			opts := crawler.RunOptions{MaxUnits: maxUnits, MaxDuration: maxDuration}
			r := a.runner()

			var (
				results []*crawler.Result
				err     error
			)
			if args[0] == crawlAll {
				results, err = r.RunAll(ctx, opts)
			} else {
				var res *crawler.Result
				res, err = r.Run(ctx, args[0], opts)
				if res != nil {
					results = append(results, res)
				}
			}

			if len(results) > 0 {
				renderResults(cmd.OutOrStdout(), results)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&maxUnits, "max-units", 0, "pages, directories or lists to process (0 uses the configured default)")
	cmd.Flags().DurationVar(&maxDuration, "max-duration", 0, "elapsed-time guard (0 uses ingest.max_run_duration)")
	return cmd
}

func renderResults(w io.Writer, results []*crawler.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Kind", "Units", "Upserted", "Skipped", "Done", "Stopped"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Kind, r.Units, r.Upserted, r.Skipped, r.Done, string(r.Stopped)})
	}
	t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
