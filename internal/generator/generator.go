package generator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidprobe/bidprobe/internal/feeder"
)

// Kind identifies the inventory variant of a synthesized request.
type Kind string

const (
	KindDisplay Kind = "display"
	KindVideo   Kind = "video"
	KindMobile  Kind = "mobile"
)

// Request is one synthesized bid request together with its serialized
// form. ID doubles as the correlation id for logging.
type Request struct {
	ID      string
	Kind    Kind
	Bid     *openrtb2.BidRequest
	Payload []byte
}

// IsVideo reports whether the request asks for instream video inventory.
func (r *Request) IsVideo() bool {
	return r.Kind == KindVideo
}

// Options configure a Generator.
type Options struct {
	// VideoProportion is the fraction of requests carrying an instream
	// video impression. Defaults to 0.1 when both proportions are zero
	// is not assumed; callers set explicit values.
	VideoProportion float64
	// MobileProportion is the fraction of requests from mobile devices.
	MobileProportion float64
	// UserIDs optionally supplies user identifiers instead of random ones.
	UserIDs feeder.Feeder
	// Seed fixes the random source for reproducible tests. Zero means
	// time-based seeding.
	Seed int64
}

// Generator synthesizes randomized OpenRTB bid requests.
type Generator struct {
	opt     Options
	mu      sync.Mutex
	rnd     *rand.Rand
	entropy *ulid.MonotonicEntropy
}

type siteInfo struct {
	id     string
	name   string
	domain string
	page   string
	pubID  string
}

type deviceInfo struct {
	os      string
	osv     string
	make_   string
	model   string
	kind    adcom1.DeviceType
	app     bool
	instl   int8
	w, h    int64
	bundle  string
	ua      string
}

type geoInfo struct {
	country string
	region  string
	city    string
	zip     string
}

var bannerDims = [][2]int64{
	{468, 60}, {120, 600}, {728, 90}, {300, 250}, {250, 250},
	{336, 280}, {120, 240}, {160, 600}, {180, 150}, {200, 200},
	{234, 60}, {125, 125},
}

var sites = []siteInfo{
	{"s-502", "TubeWatch", "tubewatch.example.com", "http://tubewatch.example.com/shows", "pub-502"},
	{"s-936", "Daily Chronicle", "chronicle.example.com", "http://chronicle.example.com/pages/technology/index.html", "pub-936"},
	{"s-1528", "Market Pulse", "marketpulse.example.com", "http://marketpulse.example.com/finance?tab=ne", "pub-1528"},
	{"s-10001", "Newswire", "newswire.example.com", "http://newswire.example.com/news?topic=b", "pub-10001"},
	{"s-10002", "Sports Desk", "sportsdesk.example.com", "http://sportsdesk.example.com/scores", "pub-10002"},
	{"s-90002301", "anon-1", "1.anonymous.invalid", "http://1.anonymous.invalid/", "pub-anon"},
	{"s-90002302", "anon-2", "2.anonymous.invalid", "http://2.anonymous.invalid/", "pub-anon"},
}

var userAgents = []string{
	"Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 6.1; Trident/7.0; rv:11.0) like Gecko",
}

var mobileDevices = []deviceInfo{
	{"iOS", "16.1.2", "Apple", "iPhone", adcom1.DevicePhone, true, 0, 320, 50, "610434022",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_1_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/20B110"},
	{"Android", "13.0.0", "Samsung", "SM-G991B", adcom1.DevicePhone, true, 0, 320, 50, "com.foo.bar",
		"Mozilla/5.0 (Linux; Android 13; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"},
	{"Android", "12.1.0", "Samsung", "SM-T870", adcom1.DeviceTablet, true, 0, 728, 90, "fus.ro.dah",
		"Mozilla/5.0 (Linux; Android 12; SM-T870) AppleWebKit/537.36 (KHTML, like Gecko) Safari/537.36"},
	{"iOS", "15.6.1", "Apple", "iPad", adcom1.DeviceTablet, true, 1, 768, 1024, "445275396",
		"Mozilla/5.0 (iPad; CPU OS 15_6_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/19G82"},
	{"Android", "11.0.0", "Motorola", "moto g power", adcom1.DevicePhone, false, 0, 360, 640, "",
		"Mozilla/5.0 (Linux; Android 11; moto g power) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0 Mobile Safari/537.36"},
}

var geoTable = []geoInfo{
	{"USA", "NY", "New York", "10116"},
	{"USA", "CA", "Sunnyvale", "94087"},
	{"USA", "FL", "Tampa", "33601"},
	{"USA", "MA", "Boston", "02102"},
	{"CAN", "ON", "Toronto", "M4C"},
	{"CAN", "NS", "Halifax", "B3H"},
	{"AUS", "NSW", "Richmond", "2753"},
	{"AUS", "VIC", "Melbourne", "3000"},
}

var blockedCategories = []string{
	"IAB7-39", "IAB8-5", "IAB8-18", "IAB9-9", "IAB17-18", "IAB23-2", "IAB25-3", "IAB26",
}

var mobileCarriers = []string{"310-260", "310-410", "311-480", "302-720"}

const (
	videoStartDelayMaxSeconds = 60
	videoDurationMaxSeconds   = 60
	cookieLength              = 20
	defaultTMaxMS             = 100
)

// New creates a Generator.
func New(opt Options) *Generator {
	seed := opt.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))
	return &Generator{
		opt:     opt,
		rnd:     rnd,
		entropy: ulid.Monotonic(rnd, 0),
	}
}

// Generate synthesizes one randomized bid request. The variant is a
// Bernoulli draw over the configured video and mobile proportions.
func (g *Generator) Generate(ctx context.Context) (*Request, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kind := KindDisplay
	draw := g.rnd.Float64()
	switch {
	case draw < g.opt.VideoProportion:
		kind = KindVideo
	case draw < g.opt.VideoProportion+g.opt.MobileProportion:
		kind = KindMobile
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()

	bid := &openrtb2.BidRequest{
		ID:   id,
		Test: 1,
		AT:   2,
		TMax: defaultTMaxMS,
		Cur:  []string{"USD"},
	}

	site := sites[g.rnd.Intn(len(sites))]
	var dev deviceInfo
	switch kind {
	case KindMobile:
		dev = mobileDevices[g.rnd.Intn(len(mobileDevices))]
		if dev.app {
			bid.App = &openrtb2.App{
				ID:       site.id,
				Name:     site.name,
				Bundle:   dev.bundle,
				StoreURL: "https://store.example.com/" + dev.bundle,
				Publisher: &openrtb2.Publisher{ID: site.pubID, Name: site.name},
			}
		} else {
			bid.Site = g.siteFor(site)
		}
	default:
		bid.Site = g.siteFor(site)
	}

	bid.Device = g.device(kind, dev)

	user, err := g.user(ctx)
	if err != nil {
		return nil, err
	}
	bid.User = user

	// Category blocks appear on a minority of requests, mirroring real
	// exchange traffic.
	if g.rnd.Float64() < 0.2 {
		bid.BCat = g.pickCategories()
	}

	imp := g.impression(kind, dev)
	bid.Imp = []openrtb2.Imp{imp}

	payload, err := json.Marshal(bid)
	if err != nil {
		return nil, fmt.Errorf("marshal bid request: %w", err)
	}

	return &Request{ID: id, Kind: kind, Bid: bid, Payload: payload}, nil
}

func (g *Generator) siteFor(s siteInfo) *openrtb2.Site {
	return &openrtb2.Site{
		ID:        s.id,
		Name:      s.name,
		Domain:    s.domain,
		Page:      s.page,
		Publisher: &openrtb2.Publisher{ID: s.pubID, Name: s.name},
	}
}

func (g *Generator) device(kind Kind, dev deviceInfo) *openrtb2.Device {
	geo := geoTable[g.rnd.Intn(len(geoTable))]
	d := &openrtb2.Device{
		// Last octet truncated, matching exchange IP redaction.
		IP:       fmt.Sprintf("%d.%d.%d.0", g.rnd.Intn(224)+1, g.rnd.Intn(256), g.rnd.Intn(256)),
		Language: "en",
		Geo: &openrtb2.Geo{
			Country: geo.country,
			Region:  geo.region,
			City:    geo.city,
			ZIP:     geo.zip,
		},
	}
	if kind == KindMobile {
		d.UA = dev.ua
		d.OS = dev.os
		d.OSV = dev.osv
		d.Make = dev.make_
		d.Model = dev.model
		d.DeviceType = dev.kind
		d.Carrier = mobileCarriers[g.rnd.Intn(len(mobileCarriers))]
	} else {
		d.UA = userAgents[g.rnd.Intn(len(userAgents))]
		d.DeviceType = adcom1.DevicePC
	}
	return d
}

func (g *Generator) user(ctx context.Context) (*openrtb2.User, error) {
	var id string
	if g.opt.UserIDs != nil {
		var err error
		id, err = g.opt.UserIDs.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("user id pool: %w", err)
		}
	} else {
		cookie := make([]byte, cookieLength)
		g.rnd.Read(cookie)
		id = base64.RawURLEncoding.EncodeToString(cookie)
	}
	return &openrtb2.User{ID: id, BuyerUID: uuid.NewString()}, nil
}

func (g *Generator) impression(kind Kind, dev deviceInfo) openrtb2.Imp {
	secure := int8(1)
	imp := openrtb2.Imp{
		ID:          "1",
		TagID:       uuid.NewString(),
		BidFloor:    float64(g.rnd.Intn(99)+1) / 100,
		BidFloorCur: "USD",
		Secure:      &secure,
	}

	switch kind {
	case KindVideo:
		imp.Video = g.video()
	case KindMobile:
		imp.Instl = dev.instl
		imp.Banner = banner(dev.w, dev.h)
	default:
		dims := bannerDims[g.rnd.Intn(len(bannerDims))]
		imp.Banner = banner(dims[0], dims[1])
	}
	return imp
}

func (g *Generator) video() *openrtb2.Video {
	// Pre-roll, mid-roll with an offset, or post-roll.
	var delay adcom1.StartDelay
	switch g.rnd.Intn(3) {
	case 0:
		delay = adcom1.StartDelay(0)
	case 1:
		delay = adcom1.StartDelay(int64(g.rnd.Intn(videoStartDelayMaxSeconds) + 1))
	default:
		delay = adcom1.StartDelay(-2)
	}

	w, h := int64(640), int64(480)
	v := &openrtb2.Video{
		MIMEs:      []string{"video/mp4", "video/webm"},
		StartDelay: &delay,
		W:          &w,
		H:          &h,
	}
	if g.rnd.Intn(2) == 0 {
		v.MaxDuration = int64(g.rnd.Intn(videoDurationMaxSeconds) + 1)
	}
	return v
}

func (g *Generator) pickCategories() []string {
	n := g.rnd.Intn(4) + 1
	picked := make(map[string]struct{}, n)
	for len(picked) < n {
		picked[blockedCategories[g.rnd.Intn(len(blockedCategories))]] = struct{}{}
	}
	cats := make([]string, 0, n)
	for c := range picked {
		cats = append(cats, c)
	}
	return cats
}

func banner(w, h int64) *openrtb2.Banner {
	return &openrtb2.Banner{
		W:      &w,
		H:      &h,
		Format: []openrtb2.Format{{W: w, H: h}},
	}
}
