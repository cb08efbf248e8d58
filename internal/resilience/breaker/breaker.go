// Package breaker implements the circuit breaker guarding the LLM
// adapter call in the analysis engine: states {closed, open,
// half-open}, consecutive-failure/success counters, and a timed
// half-open probe.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is one of the three circuit-breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config parameterizes the breaker.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// DefaultConfig returns the parameters the analysis engine runs with:
// FailureThreshold=5, SuccessThreshold=2, OpenTimeout=60s.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
	}
}

// ErrCircuitOpen is returned by Allow-gated callers when the circuit is open.
type circuitOpenError struct{}

func (circuitOpenError) Error() string { return "circuit breaker is open" }

var ErrCircuitOpen error = circuitOpenError{}

func IsCircuitOpen(err error) bool {
	_, ok := err.(circuitOpenError)
	return ok
}

// Breaker is a single named circuit breaker instance.
type Breaker struct {
	mu     sync.Mutex
	name   string
	config Config
	logger zerolog.Logger

	state State

	consecutiveFailures  int
	consecutiveSuccesses int

	openedAt              time.Time
	halfOpenProbeInFlight bool

	totalTrips int64
}

// New creates a breaker with the given name and config, defaulting any
// zero-valued fields to DefaultConfig.
func New(name string, cfg Config, logger zerolog.Logger) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	return &Breaker{
		name:   name,
		config: cfg,
		state:  StateClosed,
		logger: logger.With().Str("breaker", name).Logger(),
	}
}

// Allow reports whether the next call should proceed, transitioning
// open->half-open once the timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.config.OpenTimeout {
			b.transitionTo(StateHalfOpen)
			b.halfOpenProbeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenProbeInFlight {
			return false
		}
		b.halfOpenProbeInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.consecutiveSuccesses++

	if b.state == StateHalfOpen {
		b.halfOpenProbeInFlight = false
		if b.consecutiveSuccesses >= b.config.SuccessThreshold {
			b.transitionTo(StateClosed)
			b.logger.Info().Msg("circuit breaker recovered and closed")
		}
	}
}

// RecordFailure records a failed call, tripping the breaker on the
// threshold and returning to open immediately on any half-open failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses = 0
	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.halfOpenProbeInFlight = false
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.transitionTo(StateOpen)
	b.openedAt = time.Now()
	b.halfOpenProbeInFlight = false
	b.totalTrips++
	b.logger.Warn().Int("consecutive_failures", b.consecutiveFailures).Msg("circuit breaker tripped")
}

func (b *Breaker) transitionTo(s State) {
	if b.state == s {
		return
	}
	b.state = s
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs operation if the breaker allows it, recording the
// outcome. Returns ErrCircuitOpen without running operation if blocked.
func (b *Breaker) Execute(operation func() error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}
	if err := operation(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Stats is a point-in-time snapshot for metrics export.
type Stats struct {
	State               State
	ConsecutiveFailures int
	TotalTrips          int64
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{State: b.state, ConsecutiveFailures: b.consecutiveFailures, TotalTrips: b.totalTrips}
}
