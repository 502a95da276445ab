// Package asd implements the gwpe asd command.
package asd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/gwpe/internal/app"
	"github.com/tphakala/gwpe/internal/detector"
	"github.com/tphakala/gwpe/internal/logger"
)

// Command creates the asd command, which writes an analytic
// design-sensitivity amplitude spectral density file.
func Command(ctx *app.Context) *cobra.Command {
	var (
		fmin   float64
		fmax   float64
		points int
		output string
	)

	cmd := &cobra.Command{
		Use:   "asd <curve>",
		Short: "Write an analytic ASD file",
		Long: fmt.Sprintf(`Sample a design-sensitivity fit on log-spaced frequencies and write it as a
two-column frequency, ASD text file usable as a detector psdfile.

Available curves: %s`, strings.Join(detector.AnalyticCurves(), ", ")),
		Args:      cobra.ExactArgs(1),
		ValidArgs: detector.AnalyticCurves(),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.Logger(false)
			if err != nil {
				return err
			}
			curve, err := detector.AnalyticNoiseCurve(args[0], fmin, fmax, points)
			if err != nil {
				return err
			}
			path := output
			if path == "" {
				path = strings.ToLower(args[0]) + "_asd.txt"
			}
			if err := detector.WriteNoiseCurve(path, curve); err != nil {
				return err
			}
			log.Info("noise curve written",
				logger.String("curve", curve.Source),
				logger.String("path", path),
				logger.Int("points", len(curve.Frequencies)))
			return nil
		},
	}

	cmd.Flags().Float64Var(&fmin, "fmin", 5, "Lowest frequency in Hz")
	cmd.Flags().Float64Var(&fmax, "fmax", 5000, "Highest frequency in Hz")
	cmd.Flags().IntVar(&points, "points", 1000, "Number of frequencies")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <curve>_asd.txt)")
	return cmd
}
