package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// FailurePolicy decides what a failed busy-time source contributes.
type FailurePolicy string

const (
	// FailurePolicyAssumeBusy treats the whole queried range as busy.
	FailurePolicyAssumeBusy FailurePolicy = "assume_busy"
	// FailurePolicyAssumeFree ignores the failed source.
	FailurePolicyAssumeFree FailurePolicy = "assume_free"
)

// ParseFailurePolicy validates a configured policy name.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case FailurePolicyAssumeBusy, FailurePolicyAssumeFree:
		return p, nil
	case "":
		return FailurePolicyAssumeBusy, nil
	default:
		return "", fmt.Errorf("%w: unknown failure policy %q", sharedDomain.ErrInvalidInput, s)
	}
}

// SourceWarning records a source that could not be consulted.
type SourceWarning struct {
	Source string
	Err    error
}

func (w SourceWarning) String() string {
	return w.Source + ": " + w.Err.Error()
}

// CollectorConfig configures busy-time fan-out.
type CollectorConfig struct {
	Timeout     time.Duration
	Concurrency int
	Policy      FailurePolicy
}

// DefaultCollectorConfig returns the defaults used when nothing is configured.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Timeout:     3 * time.Second,
		Concurrency: 8,
		Policy:      FailurePolicyAssumeBusy,
	}
}

// BusyResult is the merged busy time of all sources plus one warning per
// failed source.
type BusyResult struct {
	Busy     []domain.BusyInterval
	Warnings []SourceWarning
}

// Degraded reports whether any source failed.
func (r BusyResult) Degraded() bool { return len(r.Warnings) > 0 }

// BusyCollector queries busy-time sources concurrently, each under its own
// deadline. A failing source never fails the collection.
type BusyCollector struct {
	config  CollectorConfig
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewBusyCollector creates a collector.
func NewBusyCollector(config CollectorConfig, logger *slog.Logger, metrics observability.Metrics) *BusyCollector {
	defaults := DefaultCollectorConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Policy == "" {
		config.Policy = defaults.Policy
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &BusyCollector{config: config, logger: logger, metrics: metrics}
}

// Policy returns the configured failure policy.
func (c *BusyCollector) Policy() FailurePolicy { return c.config.Policy }

type sourceOutcome struct {
	busy []domain.BusyInterval
	err  error
}

// Collect gathers busy time in [start, end) from every source.
func (c *BusyCollector) Collect(ctx context.Context, sources []domain.BusyTimeSource, start, end time.Time) BusyResult {
	outcomes := make([]sourceOutcome, len(sources))

	var g errgroup.Group
	g.SetLimit(c.config.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			outcomes[i] = c.query(ctx, src, start, end)
			return nil
		})
	}
	_ = g.Wait()

	window := domain.Interval{Start: start, End: end}
	var result BusyResult
	for i, src := range sources {
		out := outcomes[i]
		if out.err != nil {
			result.Warnings = append(result.Warnings, SourceWarning{Source: src.Name(), Err: out.err})
			c.metrics.Counter(observability.MetricBusySourceFailures, 1, observability.T("source", src.Name()))
			c.logger.WarnContext(ctx, "busy-time source unavailable",
				"source", src.Name(),
				"policy", string(c.config.Policy),
				"error", out.err,
			)
			if c.config.Policy == FailurePolicyAssumeBusy {
				result.Busy = append(result.Busy, domain.BusyInterval{Interval: window, Source: src.Name()})
			}
			continue
		}
		for _, b := range out.busy {
			clipped, ok := b.Interval.Intersect(window)
			if !ok {
				continue
			}
			if b.Source == "" {
				b.Source = src.Name()
			}
			b.Interval = clipped
			result.Busy = append(result.Busy, b)
		}
	}
	return result
}

// query bounds one source call by the per-source timeout, even when the
// source ignores its context.
func (c *BusyCollector) query(ctx context.Context, src domain.BusyTimeSource, start, end time.Time) sourceOutcome {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	done := make(chan sourceOutcome, 1)
	go func() {
		busy, err := src.BusyBetween(ctx, start, end)
		done <- sourceOutcome{busy: busy, err: err}
	}()

	var out sourceOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	if out.err != nil {
		return sourceOutcome{err: fmt.Errorf("%w: %s: %w", sharedDomain.ErrSourceUnavailable, src.Name(), out.err)}
	}
	return out
}
