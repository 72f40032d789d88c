// Package classifier parses and validates bid responses from an
// untrusted endpoint, routing every dispatch attempt into exactly one
// outcome category.
package classifier

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/tidwall/gjson"

	"github.com/bidprobe/bidprobe/internal/generator"
	"github.com/bidprobe/bidprobe/internal/snippet"
)

const (
	problemNotOK           = "the HTTP response code was not 200/OK"
	problemEmptyBody       = "response is empty (0 bytes)"
	problemNotJSON         = "response is not valid JSON"
	problemNoResponseID    = "response does not declare an id"
	problemIDMismatch      = "response id %q does not echo the request id"
	problemNoProcessing    = "response does not declare ext.processing_time_ms"
	problemEmptySeat       = "seatbid %d contains no bids"
	problemNoBidID         = "bid %d: id is not set"
	problemUnknownImp      = "bid %d: imp id %q is not present in the request"
	problemZeroPrice       = "bid %d: price is zero"
	problemBelowFloor      = "bid %d: price %.4f is below the impression bid floor %.4f"
	problemNoMarkupType    = "bid %d: markup type (mtype) is not set"
	problemVideoForBanner  = "bid %d: returned video markup for a banner impression"
	problemBannerForVideo  = "bid %d: returned banner markup for a video impression"
	problemEmptyMarkup     = "bid %d: markup (adm) is empty"
	problemNoVideoDuration = "bid %d: video bid does not declare a duration"
	problemNoClickThrough  = "bid %d: no click-through url is declared"
	problemBadClickURL     = "bid %d: invalid click-through url: %s"
	problemClickNotTracked = "bid %d: click-through url %q is missing from the click tracker list"
	problemNoClickMacro    = "bid %d: snippet is missing a click url macro"
	problemMixedPriceMacro = "bid %d: snippet mixes plain and encoded winning-price macros"
)

// bidExt is the bid-level extension carrying click-tracking data.
type bidExt struct {
	ClickThroughURL string   `json:"clickthrough_url"`
	ClickTrackers   []string `json:"click_trackers"`
}

// responseExt is the response-level extension with the bidder's
// self-reported processing time.
type responseExt struct {
	ProcessingTimeMS *int64 `json:"processing_time_ms"`
}

// Classify turns one dispatch attempt into a categorized Outcome.
// It is deterministic and free of side effects: the same inputs always
// produce the same category and problem list.
func Classify(req *generator.Request, status int, payload []byte, sendErr error) *Outcome {
	out := &Outcome{
		Request:          req,
		StatusCode:       status,
		TransportErr:     sendErr,
		Payload:          payload,
		ProcessingTimeMS: -1,
	}

	if sendErr != nil || status != http.StatusOK {
		out.Problems = append(out.Problems, problemNotOK)
		out.Category = CategoryError
		return out
	}

	resp, ok := parse(out)
	if !ok {
		out.Category = CategoryInvalid
		return out
	}
	out.Response = resp

	validate(out)

	if len(out.Problems) > 0 {
		out.Category = CategoryProblematic
	} else {
		out.Category = CategoryGood
	}
	return out
}

// parse attempts to decode the payload. On failure it records the
// reason in the outcome's problem list and returns false.
func parse(out *Outcome) (*openrtb2.BidResponse, bool) {
	if len(out.Payload) == 0 {
		out.Problems = append(out.Problems, problemEmptyBody)
		return nil, false
	}
	if !gjson.ValidBytes(out.Payload) {
		out.Problems = append(out.Problems, problemNotJSON)
		return nil, false
	}
	var resp openrtb2.BidResponse
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		out.Problems = append(out.Problems, fmt.Sprintf("response could not be parsed: %v", err))
		return nil, false
	}
	return &resp, true
}

func validate(out *Outcome) {
	resp := out.Response
	req := out.Request

	if resp.ID == "" {
		out.addProblem(problemNoResponseID)
	} else if req != nil && resp.ID != req.ID {
		out.addProblem(problemIDMismatch, resp.ID)
	}

	var ext responseExt
	if len(resp.Ext) > 0 {
		// A malformed ext is treated as absent; the problem below covers it.
		_ = json.Unmarshal(resp.Ext, &ext)
	}
	if ext.ProcessingTimeMS == nil {
		out.addProblem(problemNoProcessing)
	} else {
		out.ProcessingTimeMS = *ext.ProcessingTimeMS
	}

	// A no-bid response is legitimate: absence of a bid is not a problem,
	// for video inventory included.
	if resp.NBR != nil || len(resp.SeatBid) == 0 {
		return
	}

	bidIndex := 0
	for seatIndex, seat := range resp.SeatBid {
		if len(seat.Bid) == 0 {
			out.addProblem(problemEmptySeat, seatIndex)
			continue
		}
		for i := range seat.Bid {
			validateBid(out, &seat.Bid[i], bidIndex)
			bidIndex++
		}
	}
}

func validateBid(out *Outcome, bid *openrtb2.Bid, index int) {
	req := out.Request

	if bid.ID == "" {
		out.addProblem(problemNoBidID, index)
	}

	imp := findImp(req, bid.ImpID)
	if imp == nil {
		out.addProblem(problemUnknownImp, index, bid.ImpID)
	}

	if bid.Price <= 0 {
		out.addProblem(problemZeroPrice, index)
	} else if imp != nil && imp.BidFloor > 0 && bid.Price < imp.BidFloor {
		out.addProblem(problemBelowFloor, index, bid.Price, imp.BidFloor)
	}

	switch {
	case bid.MType == 0:
		out.addProblem(problemNoMarkupType, index)
	case imp != nil && imp.Video != nil && bid.MType != openrtb2.MarkupVideo:
		out.addProblem(problemBannerForVideo, index)
	case imp != nil && imp.Banner != nil && bid.MType == openrtb2.MarkupVideo:
		out.addProblem(problemVideoForBanner, index)
	}

	if bid.AdM == "" {
		out.addProblem(problemEmptyMarkup, index)
	}

	if bid.MType == openrtb2.MarkupVideo && bid.Dur <= 0 {
		out.addProblem(problemNoVideoDuration, index)
	}

	validateClickData(out, bid, index)

	if bid.MType == openrtb2.MarkupBanner && bid.AdM != "" {
		validateMarkupMacros(out, bid.AdM, index)
	}
}

func validateClickData(out *Outcome, bid *openrtb2.Bid, index int) {
	var ext bidExt
	if len(bid.Ext) > 0 {
		_ = json.Unmarshal(bid.Ext, &ext)
	}
	if ext.ClickThroughURL == "" {
		out.addProblem(problemNoClickThrough, index)
		return
	}
	if !validHTTPURL(ext.ClickThroughURL) {
		out.addProblem(problemBadClickURL, index, ext.ClickThroughURL)
	}
	for _, tracker := range ext.ClickTrackers {
		if tracker == ext.ClickThroughURL {
			return
		}
	}
	out.addProblem(problemClickNotTracked, index, ext.ClickThroughURL)
}

func validateMarkupMacros(out *Outcome, adm string, index int) {
	if !containsAny(adm, snippet.MacroClickURL, snippet.MacroClickURLEsc) {
		out.addProblem(problemNoClickMacro, index)
	}
	if containsPlainPriceMacro(adm) && containsAny(adm, snippet.MacroAuctionPriceB64) {
		out.addProblem(problemMixedPriceMacro, index)
	}
}

// containsPlainPriceMacro reports whether adm carries the plain
// winning-price macro, ignoring occurrences of the :B64 form.
func containsPlainPriceMacro(adm string) bool {
	stripped := strings.ReplaceAll(adm, snippet.MacroAuctionPriceB64, "")
	return strings.Contains(stripped, snippet.MacroAuctionPrice)
}

func (o *Outcome) addProblem(format string, args ...any) {
	o.Problems = append(o.Problems, fmt.Sprintf(format, args...))
}

func findImp(req *generator.Request, impID string) *openrtb2.Imp {
	if req == nil || req.Bid == nil || impID == "" {
		return nil
	}
	for i := range req.Bid.Imp {
		if req.Bid.Imp[i].ID == impID {
			return &req.Bid.Imp[i]
		}
	}
	return nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
