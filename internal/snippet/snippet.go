// Package snippet renders winning bid markup into previewable HTML by
// substituting the ad-serving macros an exchange would fill at win time.
package snippet

import (
	"errors"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"
)

// Ad-serving macros recognized in bid markup.
const (
	MacroClickURL        = "${CLICK_URL}"
	MacroClickURLEsc     = "${CLICK_URL_ESC}"
	MacroAuctionPrice    = "${AUCTION_PRICE}"
	MacroAuctionPriceB64 = "${AUCTION_PRICE:B64}"
	MacroAuctionID       = "${AUCTION_ID}"
	MacroCacheBuster     = "${CACHEBUSTER}"
	MacroSite            = "${SITE}"
)

// ClickURLPrefix is the exchange click-tracking redirect substituted for
// the click macros.
const ClickURLPrefix = "http://exchange.example.com/click?url="

// Win notifications are in cost-per-impression, derived from the CPM bid
// at a fixed clearing ratio.
var winningPriceRatio = decimal.NewFromFloat(0.33)

// ErrNoMarkup is returned when a bid carries no renderable markup.
var ErrNoMarkup = errors.New("snippet: bid has no markup to render")

// Renderer substitutes macros in winning bid markup.
type Renderer struct {
	// EncryptedPrice, when non-empty, replaces the winning-price macros
	// instead of the computed clear-text price.
	EncryptedPrice string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRenderer creates a Renderer. A non-empty encryptedPrice token is
// substituted verbatim for the winning-price macros.
func NewRenderer(encryptedPrice string) *Renderer {
	return &Renderer{
		EncryptedPrice: encryptedPrice,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Render substitutes all recognized macros in the bid's markup and
// returns the previewable HTML.
func (r *Renderer) Render(req *openrtb2.BidRequest, bid *openrtb2.Bid) (string, error) {
	if bid == nil || bid.AdM == "" {
		return "", ErrNoMarkup
	}

	html := bid.AdM
	html = strings.ReplaceAll(html, MacroClickURLEsc, url.QueryEscape(ClickURLPrefix))
	html = strings.ReplaceAll(html, MacroClickURL, ClickURLPrefix)

	plain, encoded := r.priceValues(bid)
	html = strings.ReplaceAll(html, MacroAuctionPriceB64, encoded)
	html = strings.ReplaceAll(html, MacroAuctionPrice, plain)

	html = strings.ReplaceAll(html, MacroAuctionID, req.ID)
	html = strings.ReplaceAll(html, MacroCacheBuster, strconv.FormatInt(r.cacheBuster(), 10))
	html = strings.ReplaceAll(html, MacroSite, url.QueryEscape(siteDomain(req)))

	return html, nil
}

// priceValues returns the plain and encoded winning-price substitutions.
func (r *Renderer) priceValues(bid *openrtb2.Bid) (plain, encoded string) {
	if r.EncryptedPrice != "" {
		return r.EncryptedPrice, url.QueryEscape(r.EncryptedPrice)
	}
	// Clear-text preview price: CPM bid scaled to CPI.
	price := decimal.NewFromFloat(bid.Price).
		Mul(winningPriceRatio).
		Div(decimal.NewFromInt(1000))
	s := price.String()
	return s, s
}

func (r *Renderer) cacheBuster() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Int63()
}

func siteDomain(req *openrtb2.BidRequest) string {
	switch {
	case req == nil:
		return ""
	case req.Site != nil && req.Site.Domain != "":
		return req.Site.Domain
	case req.Site != nil && req.Site.Page != "":
		if u, err := url.Parse(req.Site.Page); err == nil {
			return u.Hostname()
		}
		return ""
	case req.App != nil:
		return req.App.Bundle
	default:
		return ""
	}
}
