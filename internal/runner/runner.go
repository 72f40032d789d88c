// Package runner paces and bounds the probe stream: a scheduler
// serializes rate limiting into a permit channel, and a fixed set of
// dispatch workers consumes it.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Result captures execution summary.
type Result struct {
	Total    int64
	Errors   int64
	Duration time.Duration
}

// Runner coordinates concurrent dispatch with rate limiting.
type Runner struct {
	opt     Options
	arrival arrivalController
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, arrival: newArrivalController(opt)}
}

// Run drives the probe stream until the request count or duration cap
// is reached, whichever comes first, or until ctx is cancelled. The
// caps stop new permits only; dispatches already in flight run to
// completion before Run returns.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	var total int64
	var errs int64

	// Dispatch units run under runCtx, which only caller cancellation
	// terminates. The duration cap lives on schedCtx and stops permit
	// issuance without aborting sends already in flight.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedCtx := runCtx
	if r.opt.Duration > 0 {
		var schedCancel context.CancelFunc
		schedCtx, schedCancel = context.WithTimeout(runCtx, r.opt.Duration)
		defer schedCancel()
	}

	permits := make(chan struct{}, r.opt.MaxInFlight)

	// Scheduler: serializes rate limiting to avoid burst overshoot
	// across workers. Total counts only permits actually handed over.
	go func() {
		defer close(permits)
		for {
			if schedCtx.Err() != nil {
				return
			}
			if r.opt.TotalRequests > 0 && atomic.LoadInt64(&total) >= int64(r.opt.TotalRequests) {
				return
			}
			if r.arrival != nil {
				if err := r.arrival.Wait(schedCtx); err != nil {
					return
				}
			}
			select {
			case permits <- struct{}{}:
				atomic.AddInt64(&total, 1)
			case <-schedCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(r.opt.MaxInFlight)
	for i := 0; i < r.opt.MaxInFlight; i++ {
		go func() {
			defer wg.Done()
			for range permits {
				// Permits still buffered when the caller cancels never
				// dispatch; un-count them instead of failing them.
				if runCtx.Err() != nil {
					atomic.AddInt64(&total, -1)
					continue
				}
				if r.opt.Requester != nil {
					if err := r.opt.Requester.Do(runCtx); err != nil {
						atomic.AddInt64(&errs, 1)
					}
				}
			}
		}()
	}
	wg.Wait()

	return Result{
		Total:    atomic.LoadInt64(&total),
		Errors:   atomic.LoadInt64(&errs),
		Duration: time.Since(start),
	}
}
