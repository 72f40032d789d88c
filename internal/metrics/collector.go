// Package metrics aggregates classified outcomes into run statistics:
// per-category counts, HTTP status buckets, transport error breakdowns
// and the distribution of bidder-reported processing times.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/bidprobe/bidprobe/internal/classifier"
)

// Collector records per-outcome metrics in a thread-safe manner.
type Collector struct {
	mu            sync.Mutex
	hist          *hdrhistogram.Histogram
	categories    map[classifier.Category]int64
	statusCodes   map[int]int64
	errorsByType  map[string]int64
	bidResponses  int64
	noBids        int64
	sumProcessing int64
	processed     int64
}

// Stats represents aggregated run statistics.
type Stats struct {
	Total       int64 `json:"total"`
	Good        int64 `json:"good"`
	Errors      int64 `json:"errors"`
	Invalid     int64 `json:"invalid"`
	Problematic int64 `json:"problematic"`

	// BidResponses counts outcomes that carried at least one bid;
	// NoBids counts parseable responses without bids.
	BidResponses int64 `json:"bid_responses"`
	NoBids       int64 `json:"no_bids"`

	// Processing-time distribution as reported by the bidder, in ms.
	// Only responses that declared a processing time contribute.
	ProcessingSamples int64   `json:"processing_samples"`
	MeanProcessingMs  float64 `json:"mean_processing_ms"`
	P50ProcessingMs   float64 `json:"p50_processing_ms"`
	P90ProcessingMs   float64 `json:"p90_processing_ms"`
	P99ProcessingMs   float64 `json:"p99_processing_ms"`
	MaxProcessingMs   float64 `json:"max_processing_ms"`

	Duration       time.Duration `json:"-"`
	DurationMs     float64       `json:"duration_ms"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	StatusCodes    map[int]int64  `json:"status_codes,omitempty"`
	TransportFails map[string]int `json:"transport_failures,omitempty"`
}

func NewCollector() *Collector {
	// Track processing times from 1ms up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000, 3)
	return &Collector{
		hist:         h,
		categories:   make(map[classifier.Category]int64),
		statusCodes:  make(map[int]int64),
		errorsByType: make(map[string]int64),
	}
}

// Record folds one classified outcome into the aggregates.
func (c *Collector) Record(out *classifier.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories[out.Category]++
	if out.StatusCode != 0 {
		c.statusCodes[out.StatusCode]++
	}

	if out.TransportErr != nil {
		errorType := fmt.Sprintf("%T", out.TransportErr)
		if len(errorType) > 30 {
			errorType = errorType[len(errorType)-30:]
		}
		c.errorsByType[errorType]++
	}

	if out.Response != nil {
		if out.HasBids() {
			c.bidResponses++
		} else {
			c.noBids++
		}
	}

	if out.ProcessingTimeMS >= 0 {
		ms := out.ProcessingTimeMS
		if ms < c.hist.LowestTrackableValue() {
			ms = c.hist.LowestTrackableValue()
		}
		if ms > c.hist.HighestTrackableValue() {
			ms = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(ms)
		c.sumProcessing += out.ProcessingTimeMS
		c.processed++
	}
}

// Stats computes and returns current aggregated statistics. Total is
// always the sum of the four category counts.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Good:         c.categories[classifier.CategoryGood],
		Errors:       c.categories[classifier.CategoryError],
		Invalid:      c.categories[classifier.CategoryInvalid],
		Problematic:  c.categories[classifier.CategoryProblematic],
		BidResponses: c.bidResponses,
		NoBids:       c.noBids,
	}
	stats.Total = stats.Good + stats.Errors + stats.Invalid + stats.Problematic

	stats.ProcessingSamples = c.processed
	if c.processed > 0 {
		stats.MeanProcessingMs = float64(c.sumProcessing) / float64(c.processed)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50ProcessingMs = float64(c.hist.ValueAtQuantile(50))
		stats.P90ProcessingMs = float64(c.hist.ValueAtQuantile(90))
		stats.P99ProcessingMs = float64(c.hist.ValueAtQuantile(99))
		stats.MaxProcessingMs = float64(c.hist.Max())
	}

	stats.Duration = elapsed
	stats.DurationMs = float64(elapsed) / float64(time.Millisecond)
	if elapsed > 0 && stats.Total > 0 {
		stats.RequestsPerSec = float64(stats.Total) / elapsed.Seconds()
	}

	if len(c.statusCodes) > 0 {
		stats.StatusCodes = make(map[int]int64, len(c.statusCodes))
		for code, n := range c.statusCodes {
			stats.StatusCodes[code] = n
		}
	}
	if len(c.errorsByType) > 0 {
		stats.TransportFails = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.TransportFails[k] = int(v)
		}
	}

	return stats
}

// Count returns the current count for one category.
func (c *Collector) Count(cat classifier.Category) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.categories[cat]
}

// TransportBreakdown returns a map of transport error types to counts.
func (c *Collector) TransportBreakdown() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]int)
	for k, v := range c.errorsByType {
		result[k] = int(v)
	}
	return result
}
