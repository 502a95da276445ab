// Package config implements the gwpe config command.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/gwpe/internal/app"
	"github.com/tphakala/gwpe/internal/conf"
)

// Command creates the config command, which writes the effective settings
// as YAML.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "config [path]",
		Short: "Write the effective configuration",
		Long: `Write the effective configuration, defaults merged with any config file,
environment variables and flags, to path. Without a path the embedded default
config.yaml is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_, err := cmd.OutOrStdout().Write(conf.DefaultConfigYAML())
				return err
			}
			if err := conf.SaveYAMLConfig(args[0], ctx.Settings); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", args[0])
			return nil
		},
	}
}
