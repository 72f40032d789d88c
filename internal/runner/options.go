package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// ArrivalModel selects how inter-request gaps are spaced.
type ArrivalModel string

const (
	// ArrivalModelUniform spaces requests evenly at the target rate.
	ArrivalModelUniform ArrivalModel = "uniform"
	// ArrivalModelPoisson draws exponential inter-arrival gaps, which
	// approximates real bid traffic better than a metronome.
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Requester executes a single probe: synthesize, send, classify,
// record. Implementations return an error when the attempt landed in
// the error category.
type Requester interface {
	Do(ctx context.Context) error
}

// Options configure the Runner.
type Options struct {
	MaxInFlight   int           // concurrent dispatch bound
	TotalRequests int           // stop after this many (0 means unlimited until duration)
	Duration      time.Duration // overall time limit (0 means no duration cap)
	RatePerSecond int           // target QPS (0 means unthrottled)
	ArrivalModel  ArrivalModel  // uniform (default) or poisson
	Requester     Requester     // probe executor (required)

	RandomSeed     int64                       // poisson sampler seed (0 means time-based)
	PoissonSampler func() float64              // optional injection for tests
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 1
	}
	if o.TotalRequests < 0 {
		o.TotalRequests = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one keeps permits on a fixed 1/QPS schedule; a
			// larger burst would flush a whole second's quota at once
			// after startup or any idle gap.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
