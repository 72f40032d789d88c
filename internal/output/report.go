// Package output renders the end-of-run summary and live progress line.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/bidprobe/bidprobe/internal/metrics"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Probe Results ---")
	fmt.Fprintf(w, "Requests Sent:     %d\n", stats.Total)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nOutcomes:")
	fmt.Fprintf(w, "  Good:            %d\n", stats.Good)
	fmt.Fprintf(w, "  Errors:          %d\n", stats.Errors)
	fmt.Fprintf(w, "  Invalid:         %d\n", stats.Invalid)
	fmt.Fprintf(w, "  Problematic:     %d\n", stats.Problematic)
	fmt.Fprintf(w, "\nBid Responses:     %d\n", stats.BidResponses)
	fmt.Fprintf(w, "No-Bid Responses:  %d\n", stats.NoBids)
	if stats.Total > 0 && stats.BidResponses == 0 {
		fmt.Fprintln(w, "Warning: none of the responses contained bids")
	}

	if stats.ProcessingSamples > 0 {
		fmt.Fprintln(w, "\nReported Processing Time:")
		fmt.Fprintf(w, "  Samples:         %d\n", stats.ProcessingSamples)
		fmt.Fprintf(w, "  Mean:            %.1fms\n", stats.MeanProcessingMs)
		fmt.Fprintf(w, "  P50:             %.0fms\n", stats.P50ProcessingMs)
		fmt.Fprintf(w, "  P90:             %.0fms\n", stats.P90ProcessingMs)
		fmt.Fprintf(w, "  P99:             %.0fms\n", stats.P99ProcessingMs)
		fmt.Fprintf(w, "  Max:             %.0fms\n", stats.MaxProcessingMs)
	}

	if len(stats.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range metrics.FlattenStatusBuckets(stats.StatusCodes) {
			fmt.Fprintf(w, "  HTTP %d: %d\n", row.Code, row.Count)
		}
	}

	if len(stats.TransportFails) > 0 {
		fmt.Fprintln(w, "\nTransport Failures:")
		types := make([]string, 0, len(stats.TransportFails))
		for t := range stats.TransportFails {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool {
			if stats.TransportFails[types[i]] == stats.TransportFails[types[j]] {
				return types[i] < types[j]
			}
			return stats.TransportFails[types[i]] > stats.TransportFails[types[j]]
		})
		for _, t := range types {
			fmt.Fprintf(w, "  %s: %d\n", metrics.FriendlyErrorName(t), stats.TransportFails[t])
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, stats metrics.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
