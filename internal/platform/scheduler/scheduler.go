// Package scheduler drives components that follow the fixed-interval-timer
// contract: Process() does one unit of periodic work and
// TimeUntilNextProcess() says how long to wait before the next call.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Processor is the module contract the runner drives.
type Processor interface {
	Process()
	TimeUntilNextProcess() time.Duration
}

// Runner calls a Processor from a single goroutine at the cadence the
// Processor requests. Safe for concurrent Start/Stop.
type Runner struct {
	proc Processor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
}

// New returns a runner for the given processor.
func New(proc Processor) *Runner {
	return &Runner{proc: proc}
}

// Start spawns the drive loop. Only the first call succeeds.
func (r *Runner) Start(ctx context.Context) error {
	r.startedMu.Lock()
	defer r.startedMu.Unlock()

	if r.started {
		return fmt.Errorf("scheduler already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.started = true

	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop cancels the drive loop and waits for it to exit. Idempotent.
func (r *Runner) Stop() {
	r.startedMu.Lock()
	if !r.started {
		r.startedMu.Unlock()
		return
	}
	r.startedMu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Runner) loop() {
	defer r.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
			r.proc.Process()
			timer.Reset(r.proc.TimeUntilNextProcess())
		}
	}
}
