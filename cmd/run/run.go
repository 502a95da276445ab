// Package run implements the gwpe run command.
package run

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/gwpe/internal/app"
	"github.com/tphakala/gwpe/internal/datastore"
	"github.com/tphakala/gwpe/internal/httpserver"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/notification"
	"github.com/tphakala/gwpe/internal/observability"
	"github.com/tphakala/gwpe/internal/observability/metrics"
	"github.com/tphakala/gwpe/internal/pipeline"
	"github.com/tphakala/gwpe/internal/sampler"
	"github.com/tphakala/gwpe/internal/spinner"
	"github.com/tphakala/gwpe/internal/telemetry"
	"github.com/tphakala/gwpe/internal/upload"
)

// Command creates the run command, which executes the full pipeline.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inject a signal and sample its posterior",
		Long: `Simulate detector noise, inject the configured signal and run the nested
sampler. Without a config file the built-in follow-up run is reproduced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			showProgress, _ := cmd.Flags().GetBool("progress")
			return execute(cmd.Context(), ctx, showProgress)
		},
	}

	setupFlags(cmd)
	return cmd
}

// setupFlags configures flags specific to the run command.
func setupFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("resume", true, "Resume from <outdir>/<label>_checkpoint.json when present")
	cmd.Flags().Bool("zero-noise", false, "Inject into zero noise")
	cmd.Flags().Bool("serve", false, "Start the status server")
	cmd.Flags().Bool("progress", false, "Show a live sampler status line on the console")
	_ = viper.BindPFlag("sampler.resume", cmd.Flags().Lookup("resume"))
	_ = viper.BindPFlag("data.zeronoise", cmd.Flags().Lookup("zero-noise"))
	_ = viper.BindPFlag("server.enabled", cmd.Flags().Lookup("serve"))
}

func execute(ctx context.Context, appCtx *app.Context, showProgress bool) error {
	settings := appCtx.Settings
	log, err := appCtx.Logger(true)
	if err != nil {
		return err
	}
	version := appCtx.Build.GetVersion()

	if err := telemetry.Init(settings.Telemetry, telemetry.Options{Version: version}, log); err != nil {
		log.Warn("error telemetry unavailable", logger.Error(err))
	}
	defer telemetry.Shutdown()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	tracker := httpserver.NewTracker(settings.Main.Label)

	if settings.Server.Enabled {
		server := httpserver.New(settings.Server.Listen, tracker, m.Handler(), log)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metrics.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("status server shutdown failed", logger.Error(err))
			}
		}()
	}

	deps := pipeline.Deps{
		Logger:  log,
		Metrics: m,
		Tracker: tracker,
		Version: version,
	}

	if settings.Output.Database.Enabled {
		store, err := datastore.Open(settings.Output.Database, log, m.Datastore)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		deps.Store = store
	}

	if settings.Upload.Enabled {
		uploader, err := upload.New(ctx, settings.Upload, m.Notification, log)
		if err != nil {
			return err
		}
		defer func() { _ = uploader.Close() }()
		deps.Uploader = uploader
	}

	hostname, _ := os.Hostname()
	notifier, err := notification.NewService(settings.Notification, "gwpe-"+hostname+"-"+settings.Main.Label, m.Notification, log)
	if err != nil {
		return err
	}
	deps.Notifier = notifier

	if showProgress {
		sp := spinner.NewSpinner(appCtx.Console)
		defer sp.Cleanup()
		deps.Progress = func(p sampler.Progress) { sp.Update(progressLine(p)) }
	}

	start := time.Now()
	r, err := pipeline.Run(ctx, settings, deps)
	if err != nil {
		return err
	}
	log.Info("run complete",
		logger.String("result", r.Path()),
		logger.Float64("log_bayes_factor", r.LogBayesFactor),
		logger.Duration("wall_time", time.Since(start)))
	return nil
}

// progressLine formats sampler progress the way nested sampling runs are
// usually followed: iteration, call count, evidence and remaining dlogz.
func progressLine(p sampler.Progress) string {
	line := fmt.Sprintf("iter: %d | ncall: %d | eff: %.1f%%", p.Iteration, p.NCall, 100*p.Efficiency)
	if !math.IsInf(p.LogZ, 0) && !math.IsNaN(p.LogZ) {
		line += fmt.Sprintf(" | logz: %.2f", p.LogZ)
	}
	if !math.IsInf(p.DeltaLogZ, 0) && !math.IsNaN(p.DeltaLogZ) {
		line += fmt.Sprintf(" | dlogz: %.3f", p.DeltaLogZ)
	}
	return line
}
