package classifier

import (
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidprobe/bidprobe/internal/generator"
)

// Category is the terminal bucket of one dispatch attempt. The four
// categories are mutually exclusive and exhaustive.
type Category string

const (
	// CategoryGood: status 200, parseable, zero validation problems.
	CategoryGood Category = "good"
	// CategoryError: transport failure or a non-200 status.
	CategoryError Category = "error"
	// CategoryInvalid: status 200 but the body could not be parsed.
	CategoryInvalid Category = "invalid"
	// CategoryProblematic: status 200, parseable, one or more problems.
	CategoryProblematic Category = "problematic"
)

// Categories lists all outcome categories in reporting order.
var Categories = []Category{CategoryGood, CategoryError, CategoryInvalid, CategoryProblematic}

// Outcome is the classified result of exactly one dispatch attempt.
type Outcome struct {
	Request *generator.Request

	// StatusCode is the HTTP status, or zero when transport failed.
	StatusCode   int
	TransportErr error

	// Payload holds the raw response bytes, if any were received.
	Payload []byte

	// Response is the parsed bid response, nil unless parsing succeeded.
	Response *openrtb2.BidResponse

	// ProcessingTimeMS is the bidder's self-reported processing time,
	// or -1 when the response did not declare one.
	ProcessingTimeMS int64

	Problems []string
	Category Category
}

// HasBids reports whether the parsed response carries at least one bid.
func (o *Outcome) HasBids() bool {
	if o.Response == nil {
		return false
	}
	for _, seat := range o.Response.SeatBid {
		if len(seat.Bid) > 0 {
			return true
		}
	}
	return false
}

// Bids returns every bid in the parsed response, in declaration order.
func (o *Outcome) Bids() []*openrtb2.Bid {
	if o.Response == nil {
		return nil
	}
	var bids []*openrtb2.Bid
	for i := range o.Response.SeatBid {
		seat := &o.Response.SeatBid[i]
		for j := range seat.Bid {
			bids = append(bids, &seat.Bid[j])
		}
	}
	return bids
}
