package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halcyontrade/marketsynth/internal/synthesis"
	"github.com/halcyontrade/marketsynth/pkg/metrics"
	"github.com/halcyontrade/marketsynth/pkg/models"
)

// Runner drives one synthesis engine per instrument over a historical
// message stream. Instruments share no state, so each runs on its own
// goroutine; a synthesis error aborts only its own instrument unless
// FailFast is set.
type Runner struct {
	settings models.EmulationSettings
	seed     uint64
	failFast bool
	logger   *zap.Logger
}

// NewRunner builds a runner. A nil logger is replaced with a nop logger.
func NewRunner(settings models.EmulationSettings, seed uint64, failFast bool, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{settings: settings, seed: seed, failFast: failFast, logger: logger}
}

// Run splits the messages by instrument, preserving per-instrument order,
// synthesizes each stream and appends every emitted event to out. It
// returns an error when any instrument failed.
func (r *Runner) Run(ctx context.Context, messages []models.Message, out *LogWriter) error {
	runID := uuid.New().String()
	logger := r.logger.With(zap.String("run_id", runID))

	streams := make(map[string][]models.Message)
	for _, msg := range messages {
		id := msg.Meta().SecurityID
		streams[id] = append(streams[id], msg)
	}
	logger.Info("replay starting",
		zap.Int("messages", len(messages)),
		zap.Int("instruments", len(streams)))

	var mu sync.Mutex
	var failed []string

	g, ctx := errgroup.WithContext(ctx)
	for securityID, stream := range streams {
		g.Go(func() error {
			err := r.runInstrument(ctx, securityID, stream, out)
			if err == nil {
				return nil
			}
			metrics.InstrumentsFailed.Inc()
			if r.failFast {
				return fmt.Errorf("instrument %s: %w", securityID, err)
			}
			logger.Error("instrument replay failed, skipping",
				zap.String("security_id", securityID), zap.Error(err))
			mu.Lock()
			failed = append(failed, securityID)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d instruments failed: %v", len(failed), len(streams), failed)
	}
	logger.Info("replay finished", zap.Int("instruments", len(streams)))
	return nil
}

func (r *Runner) runInstrument(ctx context.Context, securityID string, stream []models.Message, out *LogWriter) error {
	engine, err := synthesis.NewEngine(r.settings, r.seed, r.logger)
	if err != nil {
		return err
	}
	for _, msg := range stream {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, err := engine.Process(msg)
		if err != nil {
			return err
		}
		metrics.MessagesConsumed.WithLabelValues(securityID, MessageType(msg)).Inc()
		for _, ev := range events {
			if err := out.Append(ev); err != nil {
				return err
			}
		}
		metrics.EventsEmitted.WithLabelValues(securityID).Add(float64(len(events)))
	}
	return nil
}
