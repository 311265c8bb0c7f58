// Package resolver turns a selected thumbnail into the address of the
// original image. A Session runs one resolution; the Engine serializes
// requests and answers them in the request/response shape callers use.
package resolver

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"hires/internal/activation"
	"hires/internal/candidate"
	"hires/internal/config"
	"hires/internal/observe"
)

// State is a session's lifecycle stage.
type State int

const (
	StateIdle State = iota
	StateActivated
	StateObserving
	StateResolved
	StateExpired
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActivated:
		return "activated"
	case StateObserving:
		return "observing"
	case StateResolved:
		return "resolved"
	case StateExpired:
		return "expired"
	case StateCleaned:
		return "cleaned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options carries everything a session needs besides the document.
type Options struct {
	Deadline       time.Duration
	CleanupTimeout time.Duration
	FastPathLevels int
	Scanner        *candidate.Scanner
	Policy         *candidate.Policy
	Activation     activation.Config
	Observe        observe.Config
	Logger         *zap.Logger
}

// NewOptions derives session options from cfg.
func NewOptions(cfg *config.Config, logger *zap.Logger) (Options, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scanner, err := cfg.Scanner()
	if err != nil {
		return Options{}, fmt.Errorf("failed to build scanner: %w", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return Options{}, fmt.Errorf("failed to build filter: %w", err)
	}
	return Options{
		Deadline:       cfg.Timing.Deadline,
		CleanupTimeout: cfg.Timing.CleanupTimeout,
		FastPathLevels: cfg.Timing.FastPathLevels,
		Scanner:        scanner,
		Policy:         policy,
		Activation:     cfg.Activation(),
		Observe:        cfg.Observe(),
		Logger:         logger,
	}, nil
}
