package simulate

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/duel/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initializes the global logger to write to stdout and to
// logFile. An empty logFile gets a timestamped name. The returned closer
// releases the file.
func SetupLogging(logFile, format string) (io.Closer, error) {
	if logFile == "" {
		logFile = "simulate_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file), format); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Duel Ranking Simulator
======================

Drives a running service with synthetic judges that know a hidden true
order, then reports how well the resulting standings match it.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -group string
        Group to rank in, created when missing (default "simulation")
  -items int
        Number of synthetic tracks (default 40)
  -comparisons int
        Maximum number of comparisons to record (default 400)
  -workers int
        Number of concurrent judges (default 4)
  -noise float
        Probability a judge picks the weaker track (default 0.05)
  -seed int
        Seed for the hidden order (default 1)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file (default: simulate_TIMESTAMP.log)
  -verbose
        Log every comparison
  -help
        Show this help message

Examples:
  # Rank 100 tracks with noisy judges
  go run ./cmd/simulate -items 100 -comparisons 2000 -noise 0.1
`)
}
