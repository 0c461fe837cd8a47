package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/nablmesh/config"
)

// Main runs the service for profile until SIGINT or SIGTERM and returns the
// process exit code.
func Main(profile string, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet(profile+"-agent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(profile, *configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if err := a.Run(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	return 0
}
