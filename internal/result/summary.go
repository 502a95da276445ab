package result

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
)

// ParameterSummary describes the one-dimensional marginal posterior of a
// parameter by its median and 90% credible interval.
type ParameterSummary struct {
	Name     string
	Median   float64
	Lower    float64 // 5% quantile
	Upper    float64 // 95% quantile
	Mean     float64
	StdDev   float64
	Injected float64
	HasTruth bool
}

// Summary returns a summary per posterior column, sorted by name. The
// log_likelihood and log_prior columns are skipped.
func (r *Result) Summary() []ParameterSummary {
	var out []ParameterSummary
	for _, name := range r.PosteriorColumns() {
		if name == ColumnLogLikelihood || name == ColumnLogPrior {
			continue
		}
		values := r.Posterior[name]
		if len(values) == 0 {
			continue
		}
		sorted := slices.Clone(values)
		slices.Sort(sorted)

		s := ParameterSummary{
			Name:   name,
			Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
			Lower:  stat.Quantile(0.05, stat.Empirical, sorted, nil),
			Upper:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		}
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
		if len(values) < 2 {
			s.StdDev = 0
		}
		s.Injected, s.HasTruth = r.InjectionParameters[name]
		out = append(out, s)
	}
	return out
}

// WritePosteriorCSV writes the posterior with one row per sample and the
// columns in sorted order.
func (r *Result) WritePosteriorCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	columns := r.PosteriorColumns()
	if err := cw.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for i := range r.PosteriorSize() {
		for j, name := range columns {
			row[j] = strconv.FormatFloat(r.Posterior[name][i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary prints the evidence and the parameter table in a human
// readable layout.
func (r *Result) WriteSummary(w io.Writer) error {
	p := message.NewPrinter(language.English)

	if _, err := p.Fprintf(w, "Run %s (%s)\n", r.Label, r.RunID); err != nil {
		return err
	}
	lines := []string{
		p.Sprintf("ln evidence:        %.3f +/- %.3f", r.LogEvidence, r.LogEvidenceErr),
		p.Sprintf("ln noise evidence:  %.3f", r.LogNoiseEvidence),
		p.Sprintf("ln Bayes factor:    %.3f +/- %.3f", r.LogBayesFactor, r.LogEvidenceErr),
		p.Sprintf("information gain:   %.3f nats", r.InformationGain),
		p.Sprintf("likelihood calls:   %d", r.NumLikelihoodCalls),
		p.Sprintf("iterations:         %d", r.Iterations),
		p.Sprintf("posterior samples:  %d", r.PosteriorSize()),
		p.Sprintf("sampling time:      %.1f s", r.SamplingTimeSeconds),
		p.Sprintf("stop reason:        %s", r.Sampler.StopReason),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, inj := range r.Injections {
		if _, err := p.Fprintf(w, "%s: optimal SNR %.2f, matched filter SNR %.2f\n",
			inj.Detector, inj.OptimalSNR, inj.MatchedFilterSNR); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nparameter\tmedian\t5%\t95%\tinjected")
	for _, s := range r.Summary() {
		truth := "-"
		if s.HasTruth {
			truth = strconv.FormatFloat(s.Injected, 'g', 6, 64)
		}
		fmt.Fprintf(tw, "%s\t%.4g\t%.4g\t%.4g\t%s\n", s.Name, s.Median, s.Lower, s.Upper, truth)
	}
	return tw.Flush()
}
