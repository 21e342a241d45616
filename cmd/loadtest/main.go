package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/toprank/internal/loadtest"
	"github.com/okian/toprank/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers       = 200
	defaultSubmissions = 2000
	defaultTopN        = 100
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		problemID   = flag.String("problem", "298", "Problem id to submit against")
		dimension   = flag.Int("dimension", 20, "Dimension of generated solutions")
		users       = flag.Int("users", defaultUsers, "Number of distinct users")
		submissions = flag.Int("submissions", defaultSubmissions, "Total number of submissions")
		topN        = flag.Int("top", defaultTopN, "Leaderboard rows to verify")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		output      = flag.String("output", "", "Write generated submissions to this JSON file")
		seed        = flag.Uint64("seed", 0, "Generator seed (0 picks one)")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	_, err := loadtest.Run(ctx, &loadtest.Config{
		BaseURL:        *baseURL,
		ProblemID:      *problemID,
		Dimension:      *dimension,
		NumUsers:       *users,
		NumSubmissions: *submissions,
		Workers:        *workers,
		TopN:           *topN,
		Timeout:        *timeout,
		OutputFile:     *output,
		Seed:           *seed,
	})
	if err != nil {
		logger.Get().Error(ctx, "load test failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
