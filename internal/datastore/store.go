// Package datastore persists run summaries and posterior samples through
// GORM. SQLite is the default backend; MySQL is available for shared
// result databases.
package datastore

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/observability/metrics"
	"github.com/tphakala/gwpe/internal/result"
)

// sampleBatchSize bounds the rows per INSERT of posterior samples.
const sampleBatchSize = 1000

// Store is an open result database.
type Store struct {
	DB       *gorm.DB
	dbType   string
	log      logger.Logger
	recorder metrics.Recorder
}

// Open connects to the database described by settings and migrates the
// schema. A nil recorder disables metrics.
func Open(settings conf.DatabaseSettings, log logger.Logger, recorder metrics.Recorder) (*Store, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	log = log.Module("datastore")
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}

	gormLog := NewGormLogger(log, DefaultSlowQueryThreshold, gormlogger.Warn, recorder)

	var (
		dialector gorm.Dialector
		target    string
	)
	switch settings.Type {
	case "", "sqlite":
		path, err := filepath.Abs(settings.Path)
		if err != nil {
			return nil, dbError(err, "resolve_path", "path", settings.Path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, dbError(err, "create_directory", "path", path)
		}
		dialector = sqlite.Open(path + "?_foreign_keys=on")
		target = path
	case "mysql":
		dsn := MySQLDSN(settings)
		dialector = gormmysql.Open(dsn)
		target = settings.Host + ":" + strconv.Itoa(settings.Port) + "/" + settings.Database
	default:
		return nil, errors.Newf("unsupported database type %q", settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, dbError(err, "open", "type", settings.Type, "target", target)
	}

	store := &Store{DB: db, dbType: settings.Type, log: log, recorder: recorder}
	if err := store.migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("database opened", logger.String("type", settings.Type), logger.String("target", target))
	return store, nil
}

// MySQLDSN builds the connection string for a MySQL database.
func MySQLDSN(settings conf.DatabaseSettings) string {
	cfg := mysql.NewConfig()
	cfg.User = settings.Username
	cfg.Passwd = settings.Password
	cfg.Net = "tcp"
	cfg.Addr = settings.Host + ":" + strconv.Itoa(settings.Port)
	cfg.DBName = settings.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func (s *Store) migrate() error {
	if err := s.DB.AutoMigrate(&Run{}, &ParameterSummary{}, &PosteriorSample{}); err != nil {
		return dbError(err, "migrate")
	}
	return nil
}

// SaveResult stores the run, its parameter summaries and its posterior in
// one transaction and returns the database ID of the run.
func (s *Store) SaveResult(ctx context.Context, r *result.Result) (uint, error) {
	start := time.Now()
	run := runFromResult(r)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}

		samples := make([]PosteriorSample, 0, r.PosteriorSize()*len(r.Posterior))
		for _, name := range r.PosteriorColumns() {
			for i, v := range r.Posterior[name] {
				samples = append(samples, PosteriorSample{RunID: run.ID, Parameter: name, SampleIndex: i, Value: v})
			}
		}
		if len(samples) == 0 {
			return nil
		}
		return tx.CreateInBatches(samples, sampleBatchSize).Error
	})
	s.recorder.RecordDuration("save_runs", time.Since(start).Seconds())
	if err != nil {
		s.recorder.RecordOperation("save_runs", metrics.StatusError)
		return 0, dbError(err, "save_result", "label", r.Label, "run_id", r.RunID)
	}
	s.recorder.RecordOperation("save_runs", metrics.StatusSuccess)
	if dm, ok := s.recorder.(*metrics.DatastoreMetrics); ok {
		dm.RecordRowsWritten("posterior_samples", r.PosteriorSize()*len(r.Posterior))
	}

	s.log.Info("run stored",
		logger.String("label", r.Label),
		logger.String("run_id", r.RunID),
		logger.Int("posterior_samples", r.PosteriorSize()),
		logger.Duration("duration", time.Since(start)))
	return run.ID, nil
}

func runFromResult(r *result.Result) Run {
	run := Run{
		UUID:                r.RunID,
		Label:               r.Label,
		Outdir:              r.Outdir,
		Version:             r.Version,
		Sampler:             r.Sampler.Name,
		Nlive:               r.Sampler.Nlive,
		NPool:               r.Sampler.NPool,
		Seed:                strconv.FormatUint(r.Sampler.Seed, 10),
		StopReason:          r.Sampler.StopReason,
		LogEvidence:         r.LogEvidence,
		LogEvidenceErr:      r.LogEvidenceErr,
		LogNoiseEvidence:    r.LogNoiseEvidence,
		LogBayesFactor:      r.LogBayesFactor,
		InformationGain:     r.InformationGain,
		NumLikelihoodCalls:  r.NumLikelihoodCalls,
		Iterations:          r.Iterations,
		SamplingTimeSeconds: r.SamplingTimeSeconds,
		PosteriorSize:       r.PosteriorSize(),
		CreatedAt:           r.CreatedAt,
	}
	for _, ps := range r.Summary() {
		summary := ParameterSummary{
			Parameter: ps.Name,
			Median:    ps.Median,
			Lower:     ps.Lower,
			Upper:     ps.Upper,
			Mean:      ps.Mean,
			StdDev:    ps.StdDev,
		}
		if ps.HasTruth {
			v := ps.Injected
			summary.Injected = &v
		}
		run.Summaries = append(run.Summaries, summary)
	}
	return run
}

// GetRun returns the most recent run with the given label, with its
// parameter summaries.
func (s *Store) GetRun(ctx context.Context, label string) (*Run, error) {
	var run Run
	err := s.DB.WithContext(ctx).
		Preload("Summaries", func(db *gorm.DB) *gorm.DB { return db.Order("parameter ASC") }).
		Where("label = ?", label).
		Order("created_at DESC").
		Order("id DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("run", label)
		}
		return nil, dbError(err, "get_run", "label", label)
	}
	return &run, nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := s.DB.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, dbError(err, "list_runs")
	}
	return runs, nil
}

// Posterior returns the stored posterior of a run by column.
func (s *Store) Posterior(ctx context.Context, runID uint) (map[string][]float64, error) {
	var rows []PosteriorSample
	err := s.DB.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("parameter ASC").
		Order("sample_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "get_posterior", "run_id", runID)
	}
	out := make(map[string][]float64)
	for _, row := range rows {
		out[row.Parameter] = append(out[row.Parameter], row.Value)
	}
	return out, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}
