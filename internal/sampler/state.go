package sampler

import (
	"cmp"
	"encoding/json"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
)

// point is a position in the unit hypercube with its log likelihood.
type point struct {
	U    []float64 `json:"u"`
	LogL float64   `json:"logl"`
}

// deadPoint is a replaced live point with its prior volume and weight.
type deadPoint struct {
	U      []float64 `json:"u"`
	LogL   float64   `json:"logl"`
	LogVol float64   `json:"logvol"`
	LogWt  float64   `json:"logwt"`
}

// logValue is a log-space float64 that may be -Inf. encoding/json rejects
// infinities, so -Inf is written as the string "-inf".
type logValue float64

func (v logValue) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(v), -1) {
		return []byte(`"-inf"`), nil
	}
	return json.Marshal(float64(v))
}

func (v *logValue) UnmarshalJSON(data []byte) error {
	if string(data) == `"-inf"` {
		*v = logValue(math.Inf(-1))
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*v = logValue(f)
	return nil
}

// state is everything needed to continue a run. It is the checkpoint body.
type state struct {
	Version      int         `json:"version"`
	Seed         uint64      `json:"seed"`
	Names        []string    `json:"names"`
	Nlive        int         `json:"nlive"`
	Live         []point     `json:"live"`
	Dead         []deadPoint `json:"dead"`
	Iteration    int         `json:"iteration"`
	NCall        int         `json:"ncall"`
	NextProposal uint64      `json:"next_proposal"`
	Scale        float64     `json:"scale"`

	LogZ     logValue `json:"logz"`
	H        float64  `json:"information"`
	LogSumW  logValue `json:"log_sum_weights"`
	LogSumW2 logValue `json:"log_sum_weights_squared"`

	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

const stateVersion = 1

func newState(seed uint64, names []string, nlive int, live []point, ncall int) *state {
	return &state{
		Version:  stateVersion,
		Seed:     seed,
		Names:    slices.Clone(names),
		Nlive:    nlive,
		Live:     live,
		NCall:    ncall,
		Scale:    math.Sqrt(float64(len(names) + 2)),
		LogZ:     logValue(math.Inf(-1)),
		LogSumW:  logValue(math.Inf(-1)),
		LogSumW2: logValue(math.Inf(-1)),
	}
}

// logX returns the log prior volume enclosed after i dead points.
func logX(i, nlive int) float64 { return -float64(i) / float64(nlive) }

func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

func (st *state) worst() int {
	idx := 0
	for i := 1; i < len(st.Live); i++ {
		if st.Live[i].LogL < st.Live[idx].LogL {
			idx = i
		}
	}
	return idx
}

func (st *state) worstLogL() float64 { return st.Live[st.worst()].LogL }

// accumulate adds a weighted sample to the evidence and the information.
func (st *state) accumulate(logL, logWt float64) {
	logZ := float64(st.LogZ)
	logZNew := logAddExp(logZ, logWt)
	h := math.Exp(logWt-logZNew) * logL
	if !math.IsInf(logZ, -1) {
		h += math.Exp(logZ-logZNew) * (st.H + logZ)
	}
	st.H = h - logZNew
	st.LogZ = logValue(logZNew)
	st.LogSumW = logValue(logAddExp(float64(st.LogSumW), logWt))
	st.LogSumW2 = logValue(logAddExp(float64(st.LogSumW2), 2*logWt))
}

// kill moves live point idx to the dead set and puts replacement in its place.
func (st *state) kill(idx int, replacement point) {
	worst := st.Live[idx]
	st.Iteration++
	logVol := logX(st.Iteration, st.Nlive)
	// X_{i-1} - X_i = X_{i-1} (1 - e^{-1/nlive})
	logDVol := logX(st.Iteration-1, st.Nlive) + math.Log(-math.Expm1(-1/float64(st.Nlive)))
	logWt := worst.LogL + logDVol
	st.Dead = append(st.Dead, deadPoint{U: worst.U, LogL: worst.LogL, LogVol: logVol, LogWt: logWt})
	st.accumulate(worst.LogL, logWt)
	st.Live[idx] = replacement
}

// deltaLogZ estimates the log evidence still held by the live points.
func (st *state) deltaLogZ(nlive int) float64 {
	logZ := float64(st.LogZ)
	if math.IsInf(logZ, -1) {
		return math.Inf(1)
	}
	maxLogL := math.Inf(-1)
	for _, p := range st.Live {
		maxLogL = math.Max(maxLogL, p.LogL)
	}
	return logAddExp(logZ, maxLogL+logX(st.Iteration, nlive)) - logZ
}

// effectiveSamples is the Kish effective sample size of the dead points.
func (st *state) effectiveSamples() float64 {
	if len(st.Dead) == 0 {
		return 0
	}
	return math.Exp(2*float64(st.LogSumW) - float64(st.LogSumW2))
}

func (st *state) efficiency() float64 {
	if st.NCall == 0 {
		return 0
	}
	return float64(st.Iteration) / float64(st.NCall)
}

func (st *state) elapsed() time.Duration {
	return time.Duration(st.ElapsedSeconds * float64(time.Second))
}

// finalize adds the remaining live points, each owning an equal share of the
// final prior volume, and returns the run output. st is left unchanged.
func (st *state) finalize(names []string, nlive int) *Output {
	final := &state{
		LogZ:     st.LogZ,
		H:        st.H,
		LogSumW:  st.LogSumW,
		LogSumW2: st.LogSumW2,
	}
	dead := slices.Clone(st.Dead)

	live := slices.Clone(st.Live)
	slices.SortStableFunc(live, func(a, b point) int { return cmp.Compare(a.LogL, b.LogL) })
	logVol := logX(st.Iteration, nlive)
	share := logVol - math.Log(float64(len(live)))
	for k, p := range live {
		logWt := p.LogL + share
		remaining := logVol + math.Log(float64(len(live)-k)/float64(len(live)+1))
		dead = append(dead, deadPoint{U: p.U, LogL: p.LogL, LogVol: remaining, LogWt: logWt})
		final.accumulate(p.LogL, logWt)
	}

	out := &Output{
		Names:            slices.Clone(names),
		Samples:          make([][]float64, len(dead)),
		LogL:             make([]float64, len(dead)),
		LogWt:            make([]float64, len(dead)),
		LogVol:           make([]float64, len(dead)),
		LogZ:             float64(final.LogZ),
		Information:      final.H,
		Iterations:       st.Iteration,
		NCall:            st.NCall,
		Efficiency:       st.efficiency(),
		EffectiveSamples: math.Exp(2*float64(final.LogSumW) - float64(final.LogSumW2)),
		Nlive:            nlive,
	}
	out.LogZErr = math.Sqrt(math.Max(final.H, 0) / float64(nlive))
	for i, d := range dead {
		out.Samples[i] = d.U
		out.LogL[i] = d.LogL
		out.LogWt[i] = d.LogWt
		out.LogVol[i] = d.LogVol
	}
	return out
}

// Output is the result of a nested sampling run. Samples are points of the
// unit hypercube ordered as Names; they include the final live points.
type Output struct {
	Names            []string
	Samples          [][]float64
	LogL             []float64
	LogWt            []float64
	LogVol           []float64
	LogZ             float64
	LogZErr          float64
	Information      float64
	Iterations       int
	NCall            int
	Nlive            int
	Efficiency       float64
	EffectiveSamples float64
	StopReason       string
	SamplingTime     time.Duration
}

// Weights returns the normalised posterior weight of every sample.
func (o *Output) Weights() []float64 {
	w := make([]float64, len(o.LogWt))
	if len(w) == 0 {
		return w
	}
	norm := floats.LogSumExp(o.LogWt)
	for i, lw := range o.LogWt {
		w[i] = math.Exp(lw - norm)
	}
	return w
}

// EqualWeightIndices resamples the weighted samples into len(Samples)
// equally weighted draws by systematic resampling and returns the indices
// of the chosen samples.
func (o *Output) EqualWeightIndices(rng *rand.Rand) []int {
	w := o.Weights()
	n := len(w)
	idx := make([]int, 0, n)
	if n == 0 {
		return idx
	}
	offset := rng.Float64()
	var cumulative float64
	j := 0
	for i := range n {
		pos := (float64(i) + offset) / float64(n)
		for j < n-1 && cumulative+w[j] < pos {
			cumulative += w[j]
			j++
		}
		idx = append(idx, j)
	}
	return idx
}
