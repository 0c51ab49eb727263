package cache

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/resumepress/internal/logging"
)

// Sink is one invalidation target for a handle's cached public page.
type Sink interface {
	Name() string
	Purge(ctx context.Context, handle string) error
}

// Invalidator fans a purge out over the registered sinks. Critical sinks
// guard the privacy boundary: their failure must fail the mutation that
// triggered the purge. Best-effort sinks only trade staleness for
// availability and are logged on failure.
type Invalidator struct {
	critical   []Sink
	bestEffort []Sink
	logger     logging.Logger
}

func NewInvalidator(critical []Sink, bestEffort []Sink, logger logging.Logger) *Invalidator {
	return &Invalidator{
		critical:   critical,
		bestEffort: bestEffort,
		logger:     logger.With("component", "invalidator"),
	}
}

// Invalidate purges every sink for the given handles. The first critical
// sink failure aborts and is returned to the caller; best-effort failures
// are logged and counted. A rename passes both the old and new handle so
// neither tag survives.
func (i *Invalidator) Invalidate(ctx context.Context, handles ...string) error {
	for _, handle := range handles {
		for _, sink := range i.critical {
			if err := sink.Purge(ctx, handle); err != nil {
				purgeFailuresTotal.WithLabelValues(sink.Name()).Inc()
				return fmt.Errorf("purge of %s via %s failed: %w", handle, sink.Name(), err)
			}
		}
		i.purgeBestEffort(ctx, handle)
	}
	return nil
}

// InvalidateBestEffort purges every sink but never fails the caller. Used by
// mutations where serving a slightly stale page is acceptable.
func (i *Invalidator) InvalidateBestEffort(ctx context.Context, handles ...string) {
	for _, handle := range handles {
		for _, sink := range i.critical {
			if err := sink.Purge(ctx, handle); err != nil {
				purgeFailuresTotal.WithLabelValues(sink.Name()).Inc()
				i.logger.Warn(ctx, "cache purge failed", "sink", sink.Name(), "handle", handle, "error", err.Error())
			}
		}
		i.purgeBestEffort(ctx, handle)
	}
}

func (i *Invalidator) purgeBestEffort(ctx context.Context, handle string) {
	for _, sink := range i.bestEffort {
		if err := sink.Purge(ctx, handle); err != nil {
			purgeFailuresTotal.WithLabelValues(sink.Name()).Inc()
			i.logger.Warn(ctx, "cache purge failed", "sink", sink.Name(), "handle", handle, "error", err.Error())
		}
	}
}
