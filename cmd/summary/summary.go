// Package summary implements the gwpe summary command.
package summary

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tphakala/gwpe/internal/app"
	"github.com/tphakala/gwpe/internal/datastore"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/result"
)

// Command creates the summary command, which prints a stored result.
func Command(ctx *app.Context) *cobra.Command {
	var (
		csvPath  string
		fromDB   bool
		listRuns int
	)

	cmd := &cobra.Command{
		Use:   "summary [result.json]",
		Short: "Print the evidence and parameter summary of a run",
		Long: `Print a result file, by default <outdir>/<label>_result.json. With --db the
latest run with the configured label is read from the result database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := ctx.Settings
			out := cmd.OutOrStdout()

			if fromDB || listRuns > 0 {
				log, err := ctx.Logger(false)
				if err != nil {
					return err
				}
				store, err := datastore.Open(settings.Output.Database, log, nil)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				if listRuns > 0 {
					runs, err := store.ListRuns(cmd.Context(), listRuns)
					if err != nil {
						return err
					}
					return printRuns(out, runs)
				}
				run, err := store.GetRun(cmd.Context(), settings.Main.Label)
				if errors.IsNotFound(err) {
					return fmt.Errorf("%w; --list shows the stored runs", err)
				}
				if err != nil {
					return err
				}
				return printRun(out, run)
			}

			path := result.Filename(settings.Main.Outdir, settings.Main.Label)
			if len(args) == 1 {
				path = args[0]
			}
			r, err := result.Load(path)
			if err != nil {
				return err
			}
			if err := r.WriteSummary(out); err != nil {
				return err
			}
			if csvPath == "" {
				return nil
			}
			f, err := os.Create(csvPath)
			if err != nil {
				return err
			}
			if err := r.WritePosteriorCSV(f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Also write the posterior samples to this CSV file")
	cmd.Flags().BoolVar(&fromDB, "db", false, "Read the run from the result database")
	cmd.Flags().IntVar(&listRuns, "list", 0, "List the N most recent runs in the result database")
	return cmd
}

func printRun(w io.Writer, run *datastore.Run) error {
	p := message.NewPrinter(language.English)
	if _, err := p.Fprintf(w, "Run %s (%s), stored %s\n", run.Label, run.UUID, run.CreatedAt.Format("2006-01-02 15:04:05 MST")); err != nil {
		return err
	}
	p.Fprintf(w, "ln Bayes factor:    %.3f +/- %.3f\n", run.LogBayesFactor, run.LogEvidenceErr)
	p.Fprintf(w, "ln evidence:        %.3f\n", run.LogEvidence)
	p.Fprintf(w, "likelihood calls:   %d\n", run.NumLikelihoodCalls)
	p.Fprintf(w, "posterior samples:  %d\n", run.PosteriorSize)
	p.Fprintf(w, "stop reason:        %s\n", run.StopReason)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nparameter\tmedian\t5%\t95%\tinjected")
	for _, s := range run.Summaries {
		truth := "-"
		if s.Injected != nil {
			truth = strconv.FormatFloat(*s.Injected, 'g', 6, 64)
		}
		fmt.Fprintf(tw, "%s\t%.4g\t%.4g\t%.4g\t%s\n", s.Parameter, s.Median, s.Lower, s.Upper, truth)
	}
	return tw.Flush()
}

func printRuns(w io.Writer, runs []datastore.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "created\tlabel\tln BF\tsamples\tstop\tid")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04"), r.Label, r.LogBayesFactor, r.PosteriorSize, r.StopReason, r.UUID)
	}
	return tw.Flush()
}
