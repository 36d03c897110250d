// Command shipper releases a container image to a single remote host:
// it derives the next vN tag from the registry, builds and publishes the
// image, deploys it over SSH, and rolls the tag back if the deploy fails.
//
// Usage:
//
//	shipper [flags] release     - Execute one release run
//	shipper [flags] history     - Print recent release runs from the journal
//	shipper [flags] serve       - Serve the read-only run history API
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitReleaseFailed   = 3
	ExitHTTPServerError = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	commit := flag.String("commit", "", "Source commit reference being released")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("shipper %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	// Setup logger
	logger := SetupLogger(cfg)

	command := flag.Arg(0)
	if command == "" {
		command = "release"
	}

	// An interrupt after publishing must behave like a deploy failure, so the
	// release command runs under a signal-cancelled context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting shipper",
		"version", Version,
		"command", command,
		"config", *configPath,
	)

	switch command {
	case "release":
		return runRelease(ctx, cfg, logger, *commit)
	case "history":
		return runHistory(ctx, cfg, logger)
	case "serve":
		return runServe(ctx, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected release, history or serve)\n", command)
		return ExitConfigError
	}
}
