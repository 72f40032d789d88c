package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bidprobe/bidprobe/internal/metrics"
)

func sampleStats() metrics.Stats {
	return metrics.Stats{
		Total:             100,
		Good:              90,
		Errors:            4,
		Invalid:           1,
		Problematic:       5,
		BidResponses:      70,
		NoBids:            25,
		ProcessingSamples: 95,
		MeanProcessingMs:  12.5,
		P50ProcessingMs:   10,
		P90ProcessingMs:   20,
		P99ProcessingMs:   45,
		MaxProcessingMs:   60,
		Duration:          10 * time.Second,
		RequestsPerSec:    10,
		StatusCodes:       map[int]int64{200: 96, 503: 4},
		TransportFails:    map[string]int{"*net.OpError": 2},
	}
}

func TestPrintReportContainsCategories(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleStats())
	out := buf.String()
	for _, want := range []string{
		"Requests Sent:     100",
		"Good:            90",
		"Errors:          4",
		"Invalid:         1",
		"Problematic:     5",
		"HTTP 200: 96",
		"HTTP 503: 4",
		"Network error: 2",
		"P99:             45ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestPrintReportWarnsWhenNoBids(t *testing.T) {
	stats := sampleStats()
	stats.BidResponses = 0
	var buf bytes.Buffer
	PrintReport(&buf, stats)
	if !strings.Contains(buf.String(), "none of the responses contained bids") {
		t.Fatal("expected a no-bids warning")
	}
}

func TestPrintReportOmitsEmptySections(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, metrics.Stats{Total: 1, Errors: 1})
	out := buf.String()
	if strings.Contains(out, "Reported Processing Time") {
		t.Fatal("processing section should be omitted without samples")
	}
	if strings.Contains(out, "Transport Failures") {
		t.Fatal("transport section should be omitted without failures")
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleStats()); err != nil {
		t.Fatalf("PrintJSONReport: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded["total"].(float64) != 100 {
		t.Fatalf("unexpected total in JSON: %v", decoded["total"])
	}
	if decoded["good"].(float64) != 90 {
		t.Fatalf("unexpected good count in JSON: %v", decoded["good"])
	}
}

func TestProgressReporterWritesLine(t *testing.T) {
	c := metrics.NewCollector()
	var buf bytes.Buffer
	p := NewProgressReporter(c, 10*time.Millisecond, &buf)
	p.Start()
	time.Sleep(50 * time.Millisecond)
	p.Stop()
	for _, want := range []string{"Sent:", "Bids:"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("progress line missing %q, got %q", want, buf.String())
		}
	}
}

func TestProgressReporterStopIsIdempotent(t *testing.T) {
	c := metrics.NewCollector()
	p := NewProgressReporter(c, 10*time.Millisecond, nil)
	p.Start()
	p.Stop()
	p.Stop()
}
