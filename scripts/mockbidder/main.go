// Command mockbidder runs a standalone bidder endpoint for exercising
// bidprobe locally. Response behavior is tunable so every outcome
// category can be produced on demand.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/openrtb/v20/openrtb3"
)

type bidderConfig struct {
	bidRate     float64
	errorRate   float64
	invalidRate float64
	brokenRate  float64
	minDelay    time.Duration
	maxDelay    time.Duration
}

type bidder struct {
	cfg bidderConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

func main() {
	port := flag.Int("port", 8090, "Listening port")
	cfg := bidderConfig{}
	flag.Float64Var(&cfg.bidRate, "bid-rate", 0.8, "Fraction of requests answered with a bid (others no-bid)")
	flag.Float64Var(&cfg.errorRate, "error-rate", 0, "Fraction of requests answered with HTTP 500")
	flag.Float64Var(&cfg.invalidRate, "invalid-rate", 0, "Fraction of requests answered with garbage bodies")
	flag.Float64Var(&cfg.brokenRate, "broken-rate", 0, "Fraction of bids rendered with validation problems")
	flag.DurationVar(&cfg.minDelay, "min-delay", 5*time.Millisecond, "Minimum simulated processing time")
	flag.DurationVar(&cfg.maxDelay, "max-delay", 40*time.Millisecond, "Maximum simulated processing time")
	flag.Parse()

	b := &bidder{cfg: cfg, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	mux := http.NewServeMux()
	mux.HandleFunc("/bid", b.handleBid)
	mux.HandleFunc("/", b.handleBid)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock bidder listening on %s (bid-rate=%.2f error-rate=%.2f invalid-rate=%.2f broken-rate=%.2f)",
		addr, cfg.bidRate, cfg.errorRate, cfg.invalidRate, cfg.brokenRate)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (b *bidder) handleBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "bid requests must be POSTed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req openrtb2.BidRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	delay := b.delay()
	time.Sleep(delay)

	switch {
	case b.roll(b.cfg.errorRate):
		http.Error(w, "synthetic bidder failure", http.StatusInternalServerError)
		return
	case b.roll(b.cfg.invalidRate):
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": truncated`)
		return
	}

	resp := openrtb2.BidResponse{ID: req.ID, Cur: "USD"}
	resp.Ext = json.RawMessage(fmt.Sprintf(`{"processing_time_ms":%d}`, delay.Milliseconds()))

	if len(req.Imp) == 0 || !b.roll(b.cfg.bidRate) {
		nbr := openrtb3.NoBidUnknownError
		resp.NBR = &nbr
		writeJSON(w, &resp)
		return
	}

	resp.SeatBid = []openrtb2.SeatBid{{Seat: "mock-seat", Bid: []openrtb2.Bid{b.bidFor(&req.Imp[0])}}}
	writeJSON(w, &resp)
}

// bidFor builds a bid answering the impression. Broken bids drop the
// click tracker so the probe flags them as problematic.
func (b *bidder) bidFor(imp *openrtb2.Imp) openrtb2.Bid {
	bid := openrtb2.Bid{
		ID:    "mock-1",
		ImpID: imp.ID,
		Price: imp.BidFloor + 0.75,
	}

	const landing = "http://advertiser.example.com/landing"
	if imp.Video != nil {
		bid.MType = openrtb2.MarkupVideo
		bid.AdM = `<VAST version="4.0"><Ad><InLine></InLine></Ad></VAST>`
		bid.Dur = 15
	} else {
		bid.MType = openrtb2.MarkupBanner
		bid.AdM = `<a href="${CLICK_URL}http%3A%2F%2Fadvertiser.example.com%2Flanding">` +
			`<img src="//cdn.example.com/creative.png?price=${AUCTION_PRICE:B64}&cb=${CACHEBUSTER}"></a>`
	}

	if b.roll(b.cfg.brokenRate) {
		bid.Ext = json.RawMessage(fmt.Sprintf(`{"clickthrough_url":%q,"click_trackers":[]}`, landing))
	} else {
		bid.Ext = json.RawMessage(fmt.Sprintf(`{"clickthrough_url":%q,"click_trackers":[%q]}`, landing, landing))
	}
	return bid
}

func (b *bidder) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rnd.Float64() < p
}

func (b *bidder) delay() time.Duration {
	if b.cfg.maxDelay <= b.cfg.minDelay {
		return b.cfg.minDelay
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.minDelay + time.Duration(b.rnd.Int63n(int64(b.cfg.maxDelay-b.cfg.minDelay)))
}

func writeJSON(w http.ResponseWriter, resp *openrtb2.BidResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("encode response: %v", err)
	}
}
