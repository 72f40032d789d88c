package metrics

import "sort"

// StatusBucket represents the aggregated count for one HTTP status code.
type StatusBucket struct {
	Code  int
	Count int64
}

// FlattenStatusBuckets converts a status-code map into a sorted slice of
// StatusBucket rows. Rows are sorted by descending count, then by code
// for stability.
func FlattenStatusBuckets(buckets map[int]int64) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0, len(buckets))
	for code, count := range buckets {
		rows = append(rows, StatusBucket{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
