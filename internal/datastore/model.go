package datastore

import "time"

// Run is one stored inference run.
type Run struct {
	ID                  uint   `gorm:"primaryKey"`
	UUID                string `gorm:"column:uuid;size:36;uniqueIndex"`
	Label               string `gorm:"size:255;index"`
	Outdir              string `gorm:"size:1024"`
	Version             string `gorm:"size:64"`
	Sampler             string `gorm:"size:64"`
	Nlive               int
	NPool               int
	Seed                string `gorm:"size:20"`
	StopReason          string `gorm:"size:32"`
	LogEvidence         float64
	LogEvidenceErr      float64
	LogNoiseEvidence    float64
	LogBayesFactor      float64
	InformationGain     float64
	NumLikelihoodCalls  int
	Iterations          int
	SamplingTimeSeconds float64
	PosteriorSize       int
	CreatedAt           time.Time `gorm:"index"`

	Summaries []ParameterSummary `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// TableName pins the table name.
func (Run) TableName() string { return "runs" }

// ParameterSummary is the marginal posterior summary of one parameter.
type ParameterSummary struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     uint   `gorm:"index;not null"`
	Parameter string `gorm:"size:64;not null"`
	Median    float64
	Lower     float64
	Upper     float64
	Mean      float64
	StdDev    float64
	Injected  *float64
}

// TableName pins the table name.
func (ParameterSummary) TableName() string { return "parameter_summaries" }

// PosteriorSample is one value of one equally weighted posterior sample.
type PosteriorSample struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       uint   `gorm:"index:idx_posterior_run_param;not null"`
	Parameter   string `gorm:"size:64;index:idx_posterior_run_param;not null"`
	SampleIndex int    `gorm:"not null"`
	Value       float64
}

// TableName pins the table name.
func (PosteriorSample) TableName() string { return "posterior_samples" }
