package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/gwpe/cmd/asd"
	"github.com/tphakala/gwpe/cmd/config"
	"github.com/tphakala/gwpe/cmd/inject"
	"github.com/tphakala/gwpe/cmd/run"
	"github.com/tphakala/gwpe/cmd/summary"
	"github.com/tphakala/gwpe/cmd/version"
	"github.com/tphakala/gwpe/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "gwpe",
		Short:         "Gravitational-wave injection and parameter estimation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	versionCmd := version.Command(ctx)
	rootCmd.AddCommand(
		run.Command(ctx),
		inject.Command(ctx),
		asd.Command(ctx),
		summary.Command(ctx),
		config.Command(ctx),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// The version command needs no configuration
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return ctx.LoadSettings(configFile)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return ctx.Close()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface and
// binds them to their configuration keys.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/gwpe, /etc/gwpe)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("outdir", "", "Run output directory")
	flags.String("label", "", "Prefix of every output file")
	flags.Uint64("seed", 0, "Master random seed for noise and sampler")
	flags.Int("npool", 0, "Likelihood worker count, 0 picks one from the host CPU")
	flags.Int("nlive", 0, "Number of live points")

	bindings := map[string]string{
		"debug":  "debug",
		"outdir": "main.outdir",
		"label":  "main.label",
		"seed":   "main.seed",
		"npool":  "sampler.npool",
		"nlive":  "sampler.nlive",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
