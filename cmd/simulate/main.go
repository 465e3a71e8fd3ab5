package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/duel/internal/simulate"
	"github.com/okian/duel/pkg/logger"
)

// Default configuration constants.
const (
	defaultItems       = 40
	defaultComparisons = 400
	defaultWorkers     = 4
	defaultNoise       = 0.05
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		groupID     = flag.String("group", "simulation", "Group to rank in")
		items       = flag.Int("items", defaultItems, "Number of synthetic tracks")
		comparisons = flag.Int("comparisons", defaultComparisons, "Maximum number of comparisons to record")
		workers     = flag.Int("workers", defaultWorkers, "Number of concurrent judges")
		noise       = flag.Float64("noise", defaultNoise, "Probability a judge picks the weaker track")
		seed        = flag.Int64("seed", 1, "Seed for the hidden order")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile     = flag.String("log", "", "Log file (default: simulate_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Log every comparison")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	cfg := &simulate.Config{
		BaseURL:     *baseURL,
		GroupID:     *groupID,
		Items:       *items,
		Comparisons: *comparisons,
		Workers:     *workers,
		Noise:       *noise,
		Seed:        *seed,
		Timeout:     *timeout,
		Verbose:     *verbose,
	}
	if err := run(cfg, *logFile); err != nil {
		_, _ = os.Stderr.WriteString("simulate: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(cfg *simulate.Config, logFile string) error {
	closer, err := simulate.SetupLogging(logFile, logger.FormatText)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	rep, err := simulate.Run(ctx, cfg, logger.Get())
	if err != nil {
		return err
	}
	fmt.Printf("recorded=%d repeats=%d failed=%d exhausted=%t kendall_tau=%.3f top_hit=%t duration=%s\n",
		rep.Recorded, rep.Repeats, rep.Failed, rep.Exhausted, rep.KendallTau, rep.TopHit, rep.Duration)
	return nil
}
