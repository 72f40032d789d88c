package feeder

import (
	"context"
	"fmt"
)

// Feeder supplies user identifiers for synthesized bid requests.
// Implementations must be safe for concurrent use and are read-only
// after construction.
type Feeder interface {
	// Next returns an identifier from the pool. The pool wraps around,
	// so once construction succeeds Next never runs out.
	Next(ctx context.Context) (string, error)

	// Close releases any resources held by the feeder.
	Close() error

	// Len returns the total number of identifiers in the pool.
	Len() int
}

// ErrEmpty is returned when a pool file contains no usable identifiers.
var ErrEmpty = fmt.Errorf("feeder: no identifiers loaded")
