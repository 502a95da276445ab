package sampler

import (
	"os"
	"slices"
	"time"

	"github.com/tphakala/gwpe/internal/atomicfile"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
)

// checkpoint writes the run state atomically to the checkpoint file.
func (s *Sampler) checkpoint(st *state) error {
	start := time.Now()
	err := atomicfile.WriteJSON(s.cfg.CheckpointFile, st)
	if m := s.cfg.Metrics; m != nil {
		m.RecordCheckpoint(err)
		m.RecordDuration("checkpoint", time.Since(start).Seconds())
	}
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryCheckpoint).
			Component("sampler").
			Timing("write_checkpoint", time.Since(start)).
			Context("path", s.cfg.CheckpointFile).
			Build()
	}
	s.log.Info("checkpoint written",
		logger.String("path", s.cfg.CheckpointFile),
		logger.Int("iteration", st.Iteration),
		logger.Duration("write_time", time.Since(start)))
	return nil
}

// loadCheckpoint reads a checkpoint. A missing file yields an error that
// matches os.ErrNotExist.
func loadCheckpoint(path string) (*state, error) {
	var st state
	if err := atomicfile.ReadJSON(path, &st); err != nil {
		var size int64
		if info, statErr := os.Stat(path); statErr == nil {
			size = info.Size()
		}
		return nil, errors.New(err).
			Category(errors.CategoryCheckpoint).
			Component("sampler").
			FileContext(path, size).
			Context("operation", "read_checkpoint").
			Build()
	}
	if st.Version != stateVersion {
		return nil, errors.Newf("checkpoint version %d is not supported", st.Version).
			Category(errors.CategoryCheckpoint).
			Component("sampler").
			Context("path", path).
			Build()
	}
	return &st, nil
}

// ErrCheckpointMismatch is wrapped when a checkpoint on disk belongs to a run
// with different settings.
var ErrCheckpointMismatch = errors.NewStd("checkpoint does not match run settings")

// compatible rejects checkpoints written by a run with different settings.
func (s *Sampler) compatible(st *state) error {
	mismatch := func(what string, got, want any) error {
		return errors.Newf("%w: %s was written with %s %v, this run uses %v", ErrCheckpointMismatch, s.cfg.CheckpointFile, what, got, want).
			Category(errors.CategoryCheckpoint).
			Component("sampler").
			Build()
	}
	switch {
	case st.Seed != s.cfg.Seed:
		return mismatch("seed", st.Seed, s.cfg.Seed)
	case st.Nlive != s.cfg.Nlive || len(st.Live) != s.cfg.Nlive:
		return mismatch("nlive", st.Nlive, s.cfg.Nlive)
	case !slices.Equal(st.Names, s.problem.Names):
		return mismatch("parameters", st.Names, s.problem.Names)
	}
	for _, p := range st.Live {
		if len(p.U) != s.problem.Dim() {
			return mismatch("dimension", len(p.U), s.problem.Dim())
		}
	}
	return nil
}
