// Package result holds the outcome of an inference run: evidence, nested
// samples and the equally weighted posterior, and persists it as JSON.
package result

import (
	"maps"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/gwpe/internal/atomicfile"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/prior"
	"github.com/tphakala/gwpe/internal/sampler"
)

// Extra posterior columns added next to the parameters.
const (
	ColumnLogLikelihood = "log_likelihood"
	ColumnLogPrior      = "log_prior"
	ColumnWeight        = "weight"
)

// resampleStream is the PCG stream used to draw the equally weighted posterior.
const resampleStream uint64 = 1 << 62

// SamplerInfo records the sampler settings of a run.
type SamplerInfo struct {
	Name       string  `json:"name"`
	Nlive      int     `json:"nlive"`
	Walks      int     `json:"walks"`
	NPool      int     `json:"npool"`
	QueueSize  int     `json:"queue_size"`
	Dlogz      float64 `json:"dlogz"`
	NEffective int     `json:"n_effective"`
	Seed       uint64  `json:"seed"`
	StopReason string  `json:"stop_reason"`
}

// InjectionSNR is the signal-to-noise ratio of the injection in one detector.
type InjectionSNR struct {
	Detector              string  `json:"detector"`
	OptimalSNR            float64 `json:"optimal_snr"`
	MatchedFilterSNR      float64 `json:"matched_filter_snr"`
	MatchedFilterSNRPhase float64 `json:"matched_filter_snr_phase"`
}

// Result is everything an inference run produced.
type Result struct {
	RunID               string             `json:"run_id"`
	Label               string             `json:"label"`
	Outdir              string             `json:"outdir"`
	Version             string             `json:"version"`
	CreatedAt           time.Time          `json:"created_at"`
	Sampler             SamplerInfo        `json:"sampler"`
	SearchParameterKeys []string           `json:"search_parameter_keys"`
	FixedParameters     params.Parameters  `json:"fixed_parameters"`
	InjectionParameters params.Parameters  `json:"injection_parameters"`
	Injections          []InjectionSNR     `json:"injections,omitempty"`
	LogEvidence         float64            `json:"log_evidence"`
	LogEvidenceErr      float64            `json:"log_evidence_err"`
	LogNoiseEvidence    float64            `json:"log_noise_evidence"`
	LogBayesFactor      float64            `json:"log_bayes_factor"`
	InformationGain     float64            `json:"information_gain"`
	NumLikelihoodCalls  int                `json:"num_likelihood_evaluations"`
	Iterations          int                `json:"iterations"`
	SamplingTimeSeconds float64            `json:"sampling_time_s"`
	NestedSamples       map[string][]float64 `json:"nested_samples"`
	Posterior           map[string][]float64 `json:"posterior"`
}

// Meta is the run information that does not come from the sampler.
type Meta struct {
	Label            string
	Outdir           string
	Version          string
	Sampler          SamplerInfo
	Injection        params.Parameters
	Injections       []InjectionSNR
	LogNoiseEvidence float64
}

// New assembles a result from a finished sampler run. Nested samples keep
// their weights; the posterior is an equally weighted resample drawn with a
// stream of the run seed, extended with the fixed and derived mass
// parameters.
func New(meta Meta, out *sampler.Output, priors *prior.Dict) *Result {
	r := &Result{
		RunID:               uuid.NewString(),
		Label:               meta.Label,
		Outdir:              meta.Outdir,
		Version:             meta.Version,
		CreatedAt:           time.Now().UTC(),
		Sampler:             meta.Sampler,
		SearchParameterKeys: slices.Clone(out.Names),
		FixedParameters:     priors.FixedValues(),
		InjectionParameters: meta.Injection.Clone(),
		Injections:          slices.Clone(meta.Injections),
		LogBayesFactor:      out.LogZ,
		LogEvidence:         out.LogZ + meta.LogNoiseEvidence,
		LogEvidenceErr:      out.LogZErr,
		LogNoiseEvidence:    meta.LogNoiseEvidence,
		InformationGain:     out.Information,
		NumLikelihoodCalls:  out.NCall,
		Iterations:          out.Iterations,
		SamplingTimeSeconds: out.SamplingTime.Seconds(),
	}
	r.Sampler.StopReason = out.StopReason

	weights := out.Weights()
	r.NestedSamples = make(map[string][]float64, len(out.Names)+2)
	for _, name := range out.Names {
		r.NestedSamples[name] = make([]float64, len(out.Samples))
	}
	r.NestedSamples[ColumnLogLikelihood] = slices.Clone(out.LogL)
	r.NestedSamples[ColumnWeight] = weights
	for i, u := range out.Samples {
		p := priors.Rescale(u)
		for _, name := range out.Names {
			r.NestedSamples[name][i] = p[name]
		}
	}

	rng := rand.New(rand.NewPCG(meta.Sampler.Seed, resampleStream))
	indices := out.EqualWeightIndices(rng)
	r.Posterior = make(map[string][]float64)
	for row, idx := range indices {
		p := params.GenerateMassParameters(priors.Rescale(out.Samples[idx]))
		p[ColumnLogLikelihood] = out.LogL[idx]
		p[ColumnLogPrior] = priors.LnProb(p)
		for name, v := range p {
			col, ok := r.Posterior[name]
			if !ok {
				col = make([]float64, len(indices))
				r.Posterior[name] = col
			}
			col[row] = v
		}
	}
	return r
}

// Filename returns the conventional result path <outdir>/<label>_result.json.
func Filename(outdir, label string) string {
	return filepath.Join(outdir, label+"_result.json")
}

// Path returns where the result is saved.
func (r *Result) Path() string { return Filename(r.Outdir, r.Label) }

// PosteriorColumns returns the posterior column names, sorted.
func (r *Result) PosteriorColumns() []string {
	return slices.Sorted(maps.Keys(r.Posterior))
}

// PosteriorSize returns the number of equally weighted samples.
func (r *Result) PosteriorSize() int {
	for _, col := range r.Posterior {
		return len(col)
	}
	return 0
}

// Save writes the result atomically to Path.
func (r *Result) Save() error {
	if err := checkFinite(r); err != nil {
		return err
	}
	if err := atomicfile.WriteJSON(r.Path(), r); err != nil {
		return errors.New(err).
			Category(errors.CategoryResult).
			Component("result").
			Context("operation", "save").
			Context("path", r.Path()).
			Build()
	}
	return nil
}

// Load reads a result written by Save.
func Load(path string) (*Result, error) {
	var r Result
	if err := atomicfile.ReadJSON(path, &r); err != nil {
		var size int64
		if info, statErr := os.Stat(path); statErr == nil {
			size = info.Size()
		}
		return nil, errors.New(err).
			Category(errors.CategoryResult).
			Component("result").
			FileContext(path, size).
			Context("operation", "load").
			Build()
	}
	return &r, nil
}

// checkFinite guards the scalar fields that encoding/json cannot represent
// when they are not finite.
func checkFinite(r *Result) error {
	scalars := map[string]float64{
		"log_evidence":       r.LogEvidence,
		"log_evidence_err":   r.LogEvidenceErr,
		"log_noise_evidence": r.LogNoiseEvidence,
		"log_bayes_factor":   r.LogBayesFactor,
		"information_gain":   r.InformationGain,
	}
	for name, v := range scalars {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Newf("result field %s is not finite", name).
				Category(errors.CategoryResult).
				Component("result").
				ParameterContext(name, v).
				Build()
		}
	}
	return nil
}
