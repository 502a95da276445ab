package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/gwpe/cmd"
	"github.com/tphakala/gwpe/internal/app"
	"github.com/tphakala/gwpe/internal/buildinfo"
)

// Set through -ldflags "-X main.version=... -X main.buildDate=... -X main.commit=..."
var (
	version   = "dev"
	buildDate string
	commit    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := app.NewContext(buildinfo.NewContext(version, buildDate, commit))
	rootCmd := cmd.RootCommand(appCtx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		_ = appCtx.Close()
		stop()
		os.Exit(1)
	}
}
