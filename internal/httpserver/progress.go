package httpserver

import (
	"math"
	"sync"
	"time"

	"github.com/tphakala/gwpe/internal/sampler"
)

// Status is the JSON body of GET /api/v1/progress. Quantities that are not
// finite yet, such as ln Z before the first iteration, are null.
type Status struct {
	Label            string   `json:"label"`
	Stage            string   `json:"stage"`
	StartedAt        string   `json:"started_at"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
	Iteration        int      `json:"iteration"`
	LikelihoodCalls  int      `json:"likelihood_calls"`
	LogEvidence      *float64 `json:"log_evidence"`
	DeltaLogEvidence *float64 `json:"delta_log_evidence"`
	LogLikelihoodMin *float64 `json:"log_likelihood_min"`
	Efficiency       *float64 `json:"efficiency"`
	EffectiveSamples *float64 `json:"effective_samples"`
	ElapsedSeconds   float64  `json:"elapsed_s"`
	Done             bool     `json:"done"`
	Error            string   `json:"error,omitempty"`
}

// Tracker keeps the latest run status for the status server. It is safe
// for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	label   string
	started time.Time
	updated time.Time
	stage   string
	prog    sampler.Progress
	done    bool
	err     string
}

// NewTracker starts tracking the run with the given label.
func NewTracker(label string) *Tracker {
	return &Tracker{label: label, started: time.Now().UTC(), prog: sampler.Progress{
		LogZ:      math.Inf(-1),
		DeltaLogZ: math.Inf(1),
		LogLMin:   math.Inf(-1),
	}}
}

// SetStage records the pipeline stage being executed.
func (t *Tracker) SetStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.updated = time.Now().UTC()
}

// Update records sampler progress. It has the signature of the sampler
// progress callback.
func (t *Tracker) Update(p sampler.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prog = p
	t.updated = time.Now().UTC()
}

// Finish marks the run as done, with err describing a failure if any.
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	if err != nil {
		t.err = err.Error()
	}
	t.updated = time.Now().UTC()
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Status{
		Label:            t.label,
		Stage:            t.stage,
		StartedAt:        t.started.Format(time.RFC3339),
		Iteration:        t.prog.Iteration,
		LikelihoodCalls:  t.prog.NCall,
		LogEvidence:      finite(t.prog.LogZ),
		DeltaLogEvidence: finite(t.prog.DeltaLogZ),
		LogLikelihoodMin: finite(t.prog.LogLMin),
		Efficiency:       finite(t.prog.Efficiency),
		EffectiveSamples: finite(t.prog.EffectiveSamples),
		ElapsedSeconds:   t.prog.Elapsed.Seconds(),
		Done:             t.done,
		Error:            t.err,
	}
	if !t.updated.IsZero() {
		s.UpdatedAt = t.updated.Format(time.RFC3339)
	}
	return s
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
