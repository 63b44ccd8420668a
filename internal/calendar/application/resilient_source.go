package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	availability "github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// ErrCircuitOpen is returned without calling a source whose breaker is open.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", sharedDomain.ErrSourceUnavailable)

// BreakerConfig configures the per-calendar circuit breakers.
type BreakerConfig struct {
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long an open breaker rejects calls before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns the defaults used when nothing is configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerSet keeps one circuit breaker per calendar so breaker state
// survives across requests while sources are rebuilt per request.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]availability.BusyInterval]
	config   BreakerConfig
	logger   *slog.Logger
	metrics  observability.Metrics
}

// NewBreakerSet creates an empty set.
func NewBreakerSet(config BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *BreakerSet {
	defaults := DefaultBreakerConfig()
	if config.MaxFailures == 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = defaults.HalfOpenRequests
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]availability.BusyInterval]),
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

func (s *BreakerSet) get(key string) *gobreaker.CircuitBreaker[[]availability.BusyInterval] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if breaker, ok := s.breakers[key]; ok {
		return breaker
	}
	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: s.config.HalfOpenRequests,
		Timeout:     s.config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.config.MaxFailures
		},
		// A caller giving up is not the calendar's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Info("circuit breaker state changed",
				"calendar", name,
				"from", from.String(),
				"to", to.String(),
			)
			s.metrics.Counter(observability.MetricBreakerStateChanges, 1, observability.T("to", to.String()))
		},
	}
	breaker := gobreaker.NewCircuitBreaker[[]availability.BusyInterval](settings)
	s.breakers[key] = breaker
	return breaker
}

// State returns the breaker state for key; unknown keys are closed.
func (s *BreakerSet) State(key string) gobreaker.State {
	s.mu.Lock()
	breaker, ok := s.breakers[key]
	s.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return breaker.State()
}

// Wrap protects src with the breaker registered under key.
func (s *BreakerSet) Wrap(key string, src availability.BusyTimeSource) *ResilientSource {
	return &ResilientSource{inner: src, breaker: s.get(key)}
}

// ResilientSource is a busy-time source behind a circuit breaker.
type ResilientSource struct {
	inner   availability.BusyTimeSource
	breaker *gobreaker.CircuitBreaker[[]availability.BusyInterval]
}

func (r *ResilientSource) Name() string { return r.inner.Name() }

// BusyBetween calls the wrapped source unless its breaker is open.
func (r *ResilientSource) BusyBetween(ctx context.Context, start, end time.Time) ([]availability.BusyInterval, error) {
	busy, err := r.breaker.Execute(func() ([]availability.BusyInterval, error) {
		return r.inner.BusyBetween(ctx, start, end)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, r.inner.Name())
	}
	return busy, err
}
