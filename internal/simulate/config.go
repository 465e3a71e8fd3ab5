// Package simulate drives a running ranking service with a synthetic judge
// that knows a hidden true order, then measures how close the service's
// standings come to it.
package simulate

import (
	"errors"
	"time"
)

// Error constants.
var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrUnhealthy     = errors.New("service unhealthy")
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service
	GroupID     string        // Group to rank in; created when missing
	Items       int           // Number of synthetic tracks
	Comparisons int           // Upper bound on recorded comparisons
	Workers     int           // Number of concurrent judges
	Noise       float64       // Probability a judge picks the weaker track
	Seed        int64         // Seed for the hidden order and the judges
	Timeout     time.Duration // HTTP request timeout
	Verbose     bool          // Log every comparison
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is empty"))
	case c.GroupID == "":
		return errors.Join(ErrInvalidConfig, errors.New("group id is empty"))
	case c.Items < 2:
		return errors.Join(ErrInvalidConfig, errors.New("at least two items are needed"))
	case c.Comparisons < 1:
		return errors.Join(ErrInvalidConfig, errors.New("comparisons must be positive"))
	case c.Workers < 1:
		return errors.Join(ErrInvalidConfig, errors.New("workers must be positive"))
	case c.Noise < 0 || c.Noise >= 0.5:
		return errors.Join(ErrInvalidConfig, errors.New("noise must be in [0, 0.5)"))
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	Recorded   int
	Repeats    int
	Failed     int
	Exhausted  bool
	Ranked     int
	KendallTau float64
	TopHit     bool
	Duration   time.Duration
}
