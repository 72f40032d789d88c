package feeder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// LineFeeder reads identifiers from a newline-delimited file and serves
// them in round-robin order. It is safe for concurrent access.
type LineFeeder struct {
	ids   []string
	index int
	mu    sync.Mutex
}

// NewLineFeeder creates a feeder from the given file path. Blank lines
// and surrounding whitespace are discarded.
func NewLineFeeder(path string) (*LineFeeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer file.Close()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrEmpty
	}

	return &LineFeeder{ids: ids}, nil
}

// Next returns the next identifier, wrapping around at the end of the pool.
func (f *LineFeeder) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.ids[f.index]
	f.index = (f.index + 1) % len(f.ids)
	return id, nil
}

// Close releases resources. For a line feeder this is a no-op.
func (f *LineFeeder) Close() error {
	return nil
}

// Len returns the total number of identifiers in the pool.
func (f *LineFeeder) Len() int {
	return len(f.ids)
}
