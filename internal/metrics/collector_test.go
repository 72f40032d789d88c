package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bidprobe/bidprobe/internal/classifier"
)

func outcome(c classifier.Category) *classifier.Outcome {
	return &classifier.Outcome{Category: c, StatusCode: 200, ProcessingTimeMS: -1}
}

func TestTotalEqualsCategorySum(t *testing.T) {
	c := NewCollector()
	c.Record(outcome(classifier.CategoryGood))
	c.Record(outcome(classifier.CategoryGood))
	c.Record(outcome(classifier.CategoryProblematic))
	c.Record(outcome(classifier.CategoryInvalid))
	c.Record(&classifier.Outcome{Category: classifier.CategoryError, ProcessingTimeMS: -1})

	stats := c.Stats(time.Second)
	if stats.Total != 5 {
		t.Fatalf("expected total 5, got %d", stats.Total)
	}
	if sum := stats.Good + stats.Errors + stats.Invalid + stats.Problematic; sum != stats.Total {
		t.Fatalf("total %d != category sum %d", stats.Total, sum)
	}
	if stats.Good != 2 || stats.Problematic != 1 || stats.Invalid != 1 || stats.Errors != 1 {
		t.Fatalf("unexpected category counts: %+v", stats)
	}
}

func TestProcessingTimeDistribution(t *testing.T) {
	c := NewCollector()
	for _, ms := range []int64{10, 20, 30, 40} {
		out := outcome(classifier.CategoryGood)
		out.ProcessingTimeMS = ms
		c.Record(out)
	}
	// Outcome without a reported processing time must not contribute.
	c.Record(outcome(classifier.CategoryProblematic))

	stats := c.Stats(time.Second)
	if stats.ProcessingSamples != 4 {
		t.Fatalf("expected 4 samples, got %d", stats.ProcessingSamples)
	}
	if stats.MeanProcessingMs != 25 {
		t.Fatalf("expected mean 25ms, got %f", stats.MeanProcessingMs)
	}
	if stats.MaxProcessingMs < 39 || stats.MaxProcessingMs > 41 {
		t.Fatalf("expected max near 40ms, got %f", stats.MaxProcessingMs)
	}
	if stats.P99ProcessingMs < stats.P50ProcessingMs {
		t.Fatal("p99 must not be below p50")
	}
}

func TestStatusCodeBuckets(t *testing.T) {
	c := NewCollector()
	c.Record(outcome(classifier.CategoryGood))
	c.Record(outcome(classifier.CategoryGood))
	bad := &classifier.Outcome{Category: classifier.CategoryError, StatusCode: 503, ProcessingTimeMS: -1}
	c.Record(bad)

	stats := c.Stats(time.Second)
	if stats.StatusCodes[200] != 2 || stats.StatusCodes[503] != 1 {
		t.Fatalf("unexpected status buckets: %v", stats.StatusCodes)
	}
}

func TestTransportBreakdown(t *testing.T) {
	c := NewCollector()
	c.Record(&classifier.Outcome{
		Category:         classifier.CategoryError,
		TransportErr:     errors.New("connection refused"),
		ProcessingTimeMS: -1,
	})
	if len(c.TransportBreakdown()) != 1 {
		t.Fatalf("expected one transport error type, got %v", c.TransportBreakdown())
	}
}

func TestRequestsPerSec(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 10; i++ {
		c.Record(outcome(classifier.CategoryGood))
	}
	stats := c.Stats(2 * time.Second)
	if stats.RequestsPerSec != 5 {
		t.Fatalf("expected 5 rps, got %f", stats.RequestsPerSec)
	}
}

func TestConcurrentRecord(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				out := outcome(classifier.CategoryGood)
				out.ProcessingTimeMS = int64(j%50 + 1)
				c.Record(out)
			}
		}()
	}
	wg.Wait()
	if got := c.Stats(time.Second).Total; got != 800 {
		t.Fatalf("expected 800 outcomes, got %d", got)
	}
}

func TestFlattenStatusBuckets(t *testing.T) {
	rows := FlattenStatusBuckets(map[int]int64{200: 5, 503: 9, 404: 9})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Code != 404 || rows[1].Code != 503 || rows[2].Code != 200 {
		t.Fatalf("unexpected order: %v", rows)
	}
}

func TestFriendlyErrorName(t *testing.T) {
	cases := map[string]string{
		"*url.Error":                     "Request URL error",
		"*net.OpError":                   "Network error",
		"*net.DNSError":                  "DNS lookup failure",
		"*context.deadlineExceededError": "Bidder timeout",
		"":                               "Unknown error",
	}
	for in, want := range cases {
		if got := FriendlyErrorName(in); got != want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", in, got, want)
		}
	}
}
