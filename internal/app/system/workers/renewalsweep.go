// internal/app/system/workers/renewalsweep.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/renewhub/internal/app/system/sweep"
	"github.com/dalemusser/renewhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// RenewalSweep is the background worker that runs the reconciliation sweep
// on a fixed interval. The console can also trigger a pass on demand
// through POST /job/run; both paths share the same Sweeper.
type RenewalSweep struct {
	sweeper  *sweep.Sweeper
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRenewalSweep creates the worker. Interval is how often a pass runs
// (e.g. 1 hour; the daily reminder watermark keeps repeated passes from
// double-notifying).
func NewRenewalSweep(sweeper *sweep.Sweeper, logger *zap.Logger, interval time.Duration) *RenewalSweep {
	return &RenewalSweep{
		sweeper:  sweeper,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *RenewalSweep) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("renewal sweep worker started",
		zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *RenewalSweep) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("renewal sweep worker stopped")
}

func (w *RenewalSweep) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweepOnce()
		}
	}
}

func (w *RenewalSweep) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Batch())
	defer cancel()

	res, err := w.sweeper.Run(ctx)
	if err != nil {
		w.log.Error("scheduled sweep failed", zap.Error(err))
		return
	}
	if res.Reminded > 0 || res.Left > 0 || len(res.Errors) > 0 {
		w.log.Info("scheduled sweep processed records",
			zap.Int("reminded", res.Reminded),
			zap.Int("left", res.Left),
			zap.Int("errors", len(res.Errors)))
	}
}
