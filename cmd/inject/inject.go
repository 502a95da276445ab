// Package inject implements the gwpe inject command.
package inject

import (
	"fmt"
	"math"
	"math/cmplx"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/gwpe/internal/app"
	"github.com/tphakala/gwpe/internal/pipeline"
)

// Command creates the inject command, which runs the stages up to signal
// injection and reports the signal-to-noise ratio per detector.
func Command(ctx *app.Context) *cobra.Command {
	var noDiagnostics bool

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Inject the signal and report its SNR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.Logger(true)
			if err != nil {
				return err
			}
			settings := *ctx.Settings
			if noDiagnostics {
				settings.Output.Diagnostics = false
			}

			inj, err := pipeline.New(&settings, pipeline.Deps{Logger: log}).Inject(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "detector\toptimal SNR\tmatched filter SNR\tphase")
			var network float64
			for _, in := range inj.Injections {
				fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.3f\n", in.Detector, in.OptimalSNR, cmplx.Abs(in.MatchedFilterSNR), cmplx.Phase(in.MatchedFilterSNR))
				network += in.OptimalSNR * in.OptimalSNR
			}
			fmt.Fprintf(tw, "network\t%.2f\t\t\n", math.Sqrt(network))
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, f := range inj.Files {
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noDiagnostics, "no-diagnostics", false, "Skip writing per-detector data files")
	return cmd
}
