// Package notification announces finished and failed runs through
// shoutrrr service URLs and an MQTT topic.
package notification

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tphakala/gwpe/internal/result"
)

// Type classifies a notification.
type Type string

const (
	TypeRunComplete Type = "run_complete"
	TypeRunFailed   Type = "run_failed"
)

// Notification is one message sent to every provider.
type Notification struct {
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Label     string    `json:"label"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	LogBayesFactor     *float64 `json:"log_bayes_factor,omitempty"`
	LogEvidence        *float64 `json:"log_evidence,omitempty"`
	LogEvidenceErr     *float64 `json:"log_evidence_err,omitempty"`
	NumLikelihoodCalls int      `json:"num_likelihood_evaluations,omitempty"`
	SamplingTimeSecs   float64  `json:"sampling_time_s,omitempty"`
	PosteriorSize      int      `json:"posterior_size,omitempty"`
	Error              string   `json:"error,omitempty"`
}

// Provider delivers notifications to one service.
type Provider interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// RunComplete builds the notification for a finished run.
func RunComplete(r *result.Result) *Notification {
	n := &Notification{
		Type:  TypeRunComplete,
		Title: "gwpe run " + r.Label + " finished",
		Message: fmt.Sprintf("ln BF = %.2f +/- %.2f, %d posterior samples, %d likelihood calls in %s",
			r.LogBayesFactor, r.LogEvidenceErr, r.PosteriorSize(), r.NumLikelihoodCalls,
			(time.Duration(r.SamplingTimeSeconds * float64(time.Second))).Round(time.Second)),
		Label:              r.Label,
		RunID:              r.RunID,
		Timestamp:          time.Now().UTC(),
		LogBayesFactor:     finite(r.LogBayesFactor),
		LogEvidence:        finite(r.LogEvidence),
		LogEvidenceErr:     finite(r.LogEvidenceErr),
		NumLikelihoodCalls: r.NumLikelihoodCalls,
		SamplingTimeSecs:   r.SamplingTimeSeconds,
		PosteriorSize:      r.PosteriorSize(),
	}
	return n
}

// RunFailed builds the notification for a failed run.
func RunFailed(label string, err error) *Notification {
	return &Notification{
		Type:      TypeRunFailed,
		Title:     "gwpe run " + label + " failed",
		Message:   err.Error(),
		Label:     label,
		Timestamp: time.Now().UTC(),
		Error:     err.Error(),
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
