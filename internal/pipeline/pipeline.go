// Package pipeline runs an injection and recovery study: parameter
// definition, detector network assembly, signal injection, prior
// specification and inference, followed by publishing the result.
package pipeline

import (
	"context"
	"math/cmplx"
	"math/rand/v2"
	"os"
	"time"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/cpuspec"
	"github.com/tphakala/gwpe/internal/datastore"
	"github.com/tphakala/gwpe/internal/detector"
	"github.com/tphakala/gwpe/internal/diagnostics"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/httpserver"
	"github.com/tphakala/gwpe/internal/likelihood"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/notification"
	"github.com/tphakala/gwpe/internal/observability"
	"github.com/tphakala/gwpe/internal/observability/metrics"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/prior"
	"github.com/tphakala/gwpe/internal/result"
	"github.com/tphakala/gwpe/internal/sampler"
	"github.com/tphakala/gwpe/internal/upload"
	"github.com/tphakala/gwpe/internal/waveform"
)

// Pipeline stages in execution order.
const (
	StageParameters = "parameter_definition"
	StageNetwork    = "network_assembly"
	StageInjection  = "signal_injection"
	StagePriors     = "prior_specification"
	StageInference  = "inference"
	StagePublish    = "publish"
)

// Stages lists every stage in execution order.
var Stages = []string{StageParameters, StageNetwork, StageInjection, StagePriors, StageInference, StagePublish}

// noiseStream is the PCG stream of the master seed used for detector noise.
const noiseStream uint64 = 0

// Deps are the optional collaborators of a run. Nil members are skipped.
type Deps struct {
	Logger   logger.Logger
	Metrics  *observability.Metrics
	Tracker  *httpserver.Tracker
	Store    *datastore.Store
	Uploader *upload.Uploader
	Notifier *notification.Service
	// Progress receives sampler progress in addition to the tracker.
	Progress func(sampler.Progress)
	Version  string
}

// Pipeline executes the stages of one run.
type Pipeline struct {
	settings *conf.Settings
	deps     Deps
	log      logger.Logger
}

// Injected is the state after the signal injection stage.
type Injected struct {
	Injection  params.Parameters
	Generator  *waveform.Generator
	Network    *detector.Network
	Injections []detector.Injection
	// Files lists the diagnostic files written.
	Files []string
}

// New returns a pipeline for settings.
func New(settings *conf.Settings, deps Deps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Pipeline{settings: settings, deps: deps, log: log.Module("pipeline")}
}

// Run executes every stage and returns the saved result. A failure after
// the pipeline started is announced through the notifier.
func Run(ctx context.Context, settings *conf.Settings, deps Deps) (*result.Result, error) {
	return New(settings, deps).Run(ctx)
}

// Run executes every stage and returns the saved result.
func (p *Pipeline) Run(ctx context.Context) (*result.Result, error) {
	p.log.Info("starting run",
		logger.String("label", p.settings.Main.Label),
		logger.String("outdir", p.settings.Main.Outdir),
		logger.Uint64("seed", p.settings.Main.Seed),
		logger.String("host", cpuspec.GetCPUSpec().Summary()))

	r, err := p.run(ctx)
	if p.deps.Tracker != nil {
		p.deps.Tracker.Finish(err)
	}
	if err != nil {
		p.notifyFailure(ctx, err)
		return nil, err
	}
	return r, nil
}

func (p *Pipeline) run(ctx context.Context) (*result.Result, error) {
	inj, err := p.Inject(ctx)
	if err != nil {
		return nil, err
	}

	var priors *prior.Dict
	if err := p.stage(StagePriors, func() error {
		priors, err = p.buildPriors(inj.Injection)
		return err
	}); err != nil {
		return nil, err
	}

	var r *result.Result
	if err := p.stage(StageInference, func() error {
		r, err = p.infer(ctx, inj, priors)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StagePublish, func() error {
		return p.publish(ctx, r, inj.Files)
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Inject runs the first three stages: it reads the injection parameters,
// simulates the detector network and adds the signal to every detector.
func (p *Pipeline) Inject(ctx context.Context) (*Injected, error) {
	s := p.settings
	inj := &Injected{}

	if err := p.stage(StageParameters, func() error {
		inj.Injection = params.Parameters(s.Injection).Clone()
		gen, err := waveform.NewGenerator(waveform.Config{
			Duration:           s.Data.Duration,
			SamplingFrequency:  s.Data.SamplingFrequency,
			Approximant:        s.Waveform.Approximant,
			ReferenceFrequency: s.Waveform.ReferenceFrequency,
			MinimumFrequency:   s.Data.MinimumFrequency,
			MaximumFrequency:   s.Data.MaximumFrequency,
		})
		if err != nil {
			return err
		}
		if missing := params.Missing(inj.Injection, gen.Parameters()); len(missing) > 0 {
			return errors.Newf("injection is missing waveform parameters %v", missing).
				Category(errors.CategoryInjection).
				Component("pipeline").
				Build()
		}
		inj.Generator = gen
		return nil
	}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	if err := p.stage(StageNetwork, func() error {
		specs := make([]detector.Spec, 0, len(s.Detectors))
		for _, d := range s.Detectors {
			specs = append(specs, detector.Spec{Name: d.Name, PSDFile: d.PSDFile})
		}
		network, err := detector.BuildNetwork(specs, detector.DataConfig{
			SamplingFrequency: s.Data.SamplingFrequency,
			Duration:          s.Data.Duration,
			StartTime:         s.Data.StartTime(),
			MinimumFrequency:  s.Data.MinimumFrequency,
			MaximumFrequency:  s.Data.MaximumFrequency,
			ZeroNoise:         s.Data.ZeroNoise,
		}, rand.NewPCG(s.Main.Seed, noiseStream), p.log)
		inj.Network = network
		return err
	}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	if err := p.stage(StageInjection, func() error {
		injections, err := inj.Network.InjectSignal(inj.Generator, inj.Injection)
		if err != nil {
			return err
		}
		inj.Injections = injections
		for _, in := range injections {
			p.log.Info("injected signal",
				logger.String("detector", in.Detector),
				logger.Float64("optimal_snr", in.OptimalSNR),
				logger.Float64("matched_filter_snr", cmplx.Abs(in.MatchedFilterSNR)))
			if p.deps.Metrics != nil {
				p.deps.Metrics.Pipeline.SetOptimalSNR(in.Detector, in.OptimalSNR)
			}
		}
		p.log.Info("Finished Injecting signal")

		if !s.Output.Diagnostics {
			return nil
		}
		p.log.Info("Saving IFO data plots to " + s.Main.Outdir)
		files, err := diagnostics.WriteNetwork(inj.Network, diagnostics.Options{
			Outdir:    s.Main.Outdir,
			Label:     s.Main.Label,
			Generator: inj.Generator,
			Injection: inj.Injection,
			RollOff:   s.Data.RollOff,
		}, p.log)
		inj.Files = files
		return err
	}); err != nil {
		return nil, err
	}
	return inj, nil
}

// buildPriors constructs the prior dictionary and checks that the
// injection lies inside it.
func (p *Pipeline) buildPriors(injection params.Parameters) (*prior.Dict, error) {
	priors, err := prior.FromSpecs(p.settings.Priors)
	if err != nil {
		return nil, err
	}
	if err := priors.CheckInjection(injection); err != nil {
		return nil, err
	}
	p.log.Info("priors ready",
		logger.Int("parameters", len(priors.Keys())),
		logger.Strings("sampled", priors.SampledKeys()),
		logger.Strings("constraints", priors.ConstraintKeys()))
	return priors, nil
}

// NewLikelihood builds the likelihood configured in settings.
func NewLikelihood(settings *conf.Settings, network *detector.Network, gen *waveform.Generator, priors *prior.Dict) (*likelihood.GravitationalWaveTransient, error) {
	return likelihood.New(network, gen, priors, likelihood.Options{
		PhaseMarginalization:    settings.Likelihood.PhaseMarginalization,
		TimeMarginalization:     settings.Likelihood.TimeMarginalization,
		DistanceMarginalization: settings.Likelihood.DistanceMarginalization,
		DistanceGridSize:        settings.Likelihood.DistanceGridSize,
	})
}

// CheckpointFile returns <outdir>/<label>_checkpoint.json.
func CheckpointFile(settings *conf.Settings) string {
	return settings.OutputPath("_checkpoint.json")
}

// PosteriorFile returns <outdir>/<label>_posterior.csv.
func PosteriorFile(settings *conf.Settings) string {
	return settings.OutputPath("_posterior.csv")
}

func (p *Pipeline) infer(ctx context.Context, inj *Injected, priors *prior.Dict) (*result.Result, error) {
	s := p.settings
	like, err := NewLikelihood(s, inj.Network, inj.Generator, priors)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Main.Outdir, 0o755); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Component("pipeline").
			Context("outdir", s.Main.Outdir).
			Build()
	}

	npool := cpuspec.GetCPUSpec().RecommendedPoolSize(s.Sampler.NPool)
	cfg := sampler.Config{
		Nlive:              s.Sampler.Nlive,
		Walks:              s.Sampler.Walks,
		NPool:              npool,
		QueueSize:          s.Sampler.QueueSize,
		Dlogz:              s.Sampler.Dlogz,
		NEffective:         s.Sampler.NEffective,
		MaxIter:            s.Sampler.MaxIter,
		MaxCall:            s.Sampler.MaxCall,
		Seed:               s.Main.Seed,
		CheckpointFile:     CheckpointFile(s),
		CheckpointInterval: time.Duration(s.Sampler.CheckpointDeltaT * float64(time.Second)),
		Resume:             s.Sampler.Resume,
		Logger:             p.log,
	}
	if p.deps.Metrics != nil {
		cfg.Metrics = p.deps.Metrics.Sampler
	}
	var listeners []func(sampler.Progress)
	if p.deps.Tracker != nil {
		listeners = append(listeners, p.deps.Tracker.Update)
	}
	if p.deps.Progress != nil {
		listeners = append(listeners, p.deps.Progress)
	}
	if len(listeners) > 0 {
		cfg.Progress = func(pr sampler.Progress) {
			for _, fn := range listeners {
				fn(pr)
			}
		}
	}

	// The marginalised parameters are pinned in the likelihood's prior.
	search := like.Priors()
	smp, err := sampler.New(sampler.NewProblem(search, like), cfg)
	if err != nil {
		return nil, err
	}

	p.log.Info("Calling sampler",
		logger.String("sampler", s.Sampler.Name),
		logger.Int("npool", npool),
		logger.Strings("search_parameters", search.SampledKeys()),
		logger.Float64("log_noise_evidence", like.NoiseLogLikelihood()))
	out, err := smp.Run(ctx)
	if err != nil {
		return nil, err
	}

	injections := make([]result.InjectionSNR, 0, len(inj.Injections))
	for _, in := range inj.Injections {
		injections = append(injections, result.InjectionSNR{
			Detector:              in.Detector,
			OptimalSNR:            in.OptimalSNR,
			MatchedFilterSNR:      cmplx.Abs(in.MatchedFilterSNR),
			MatchedFilterSNRPhase: cmplx.Phase(in.MatchedFilterSNR),
		})
	}
	return result.New(result.Meta{
		Label:   s.Main.Label,
		Outdir:  s.Main.Outdir,
		Version: p.deps.Version,
		Sampler: result.SamplerInfo{
			Name:       s.Sampler.Name,
			Nlive:      s.Sampler.Nlive,
			Walks:      s.Sampler.Walks,
			NPool:      npool,
			QueueSize:  smp.QueueSize(),
			Dlogz:      s.Sampler.Dlogz,
			NEffective: s.Sampler.NEffective,
			Seed:       s.Main.Seed,
		},
		Injection:        inj.Injection,
		Injections:       injections,
		LogNoiseEvidence: like.NoiseLogLikelihood(),
	}, out, search), nil
}

// publish saves the result and hands it to the optional datastore,
// uploader and notifier. Only the result file is required; the optional
// outputs log their failures.
func (p *Pipeline) publish(ctx context.Context, r *result.Result, diagnosticFiles []string) error {
	if err := r.Save(); err != nil {
		return err
	}
	csvPath := PosteriorFile(p.settings)
	if err := writePosteriorCSV(csvPath, r); err != nil {
		return err
	}
	p.log.Info("result saved",
		logger.String("path", r.Path()),
		logger.Float64("log_bayes_factor", r.LogBayesFactor),
		logger.Float64("log_evidence_err", r.LogEvidenceErr),
		logger.Int("posterior_samples", r.PosteriorSize()))

	if p.deps.Store != nil {
		if _, err := p.deps.Store.SaveResult(ctx, r); err != nil {
			p.log.Warn("failed to store result in database", logger.Error(err))
		}
	}

	if p.deps.Uploader != nil {
		files := append([]string{r.Path(), csvPath, CheckpointFile(p.settings)}, diagnosticFiles...)
		if err := p.deps.Uploader.UploadFiles(ctx, r.Label, files); err != nil {
			p.log.Warn("failed to upload run files", logger.Error(err))
		}
	}

	if p.deps.Notifier != nil && p.deps.Notifier.Enabled() {
		if err := p.deps.Notifier.NotifyRunComplete(ctx, r); err != nil {
			p.log.Warn("failed to send completion notification", logger.Error(err))
		}
	}
	return nil
}

func writePosteriorCSV(path string, r *result.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryResult).
			Component("pipeline").
			Context("path", path).
			Build()
	}
	if err := r.WritePosteriorCSV(f); err != nil {
		_ = f.Close()
		return errors.New(err).
			Category(errors.CategoryResult).
			Component("pipeline").
			Context("path", path).
			Build()
	}
	if err := f.Close(); err != nil {
		return errors.New(err).
			Category(errors.CategoryResult).
			Component("pipeline").
			Context("path", path).
			Build()
	}
	return nil
}

func (p *Pipeline) notifyFailure(ctx context.Context, cause error) {
	if p.deps.Notifier == nil || !p.deps.Notifier.Enabled() {
		return
	}
	if err := p.deps.Notifier.NotifyRunFailed(context.WithoutCancel(ctx), p.settings.Main.Label, cause); err != nil {
		p.log.Warn("failed to send failure notification", logger.Error(err))
	}
}

// stage runs fn as the named stage, tracking it in the status tracker and
// the pipeline metrics.
func (p *Pipeline) stage(name string, fn func() error) error {
	if p.deps.Tracker != nil {
		p.deps.Tracker.SetStage(name)
	}
	var m *metrics.PipelineMetrics
	if p.deps.Metrics != nil {
		m = p.deps.Metrics.Pipeline
		m.SetStage(name, Stages)
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if m != nil {
		m.RecordDuration(name, elapsed.Seconds())
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
			m.RecordError(name, errorCategory(err))
		}
		m.RecordOperation(name, status)
	}
	if err != nil {
		p.log.Error("stage failed", logger.String("stage", name), logger.Error(err))
		return err
	}
	p.log.Debug("stage completed", logger.String("stage", name), logger.Duration("duration", elapsed))
	return nil
}

func errorCategory(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	if errors.Is(err, context.Canceled) {
		return string(errors.CategoryCancellation)
	}
	return string(errors.CategoryGeneric)
}

func cancelled(err error) error {
	return errors.New(err).
		Category(errors.CategoryCancellation).
		Component("pipeline").
		Build()
}
