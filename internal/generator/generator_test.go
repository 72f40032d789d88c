package generator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
)

type staticFeeder struct {
	ids   []string
	index int
}

func (f *staticFeeder) Next(ctx context.Context) (string, error) {
	id := f.ids[f.index%len(f.ids)]
	f.index++
	return id, nil
}

func (f *staticFeeder) Close() error { return nil }
func (f *staticFeeder) Len() int     { return len(f.ids) }

func TestGenerateBasicShape(t *testing.T) {
	g := New(Options{Seed: 1})
	req, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if req.ID == "" {
		t.Fatal("request id must be set")
	}
	if req.Bid.ID != req.ID {
		t.Fatalf("correlation id mismatch: %q vs %q", req.Bid.ID, req.ID)
	}
	if req.Bid.Test != 1 {
		t.Fatal("synthesized requests must be marked as test traffic")
	}
	if len(req.Bid.Imp) != 1 {
		t.Fatalf("expected one impression, got %d", len(req.Bid.Imp))
	}
	if req.Bid.Imp[0].BidFloor <= 0 {
		t.Fatal("impression must carry a bid floor")
	}
	if req.Bid.Device == nil || req.Bid.User == nil {
		t.Fatal("device and user must be populated")
	}
	if req.Bid.Site == nil && req.Bid.App == nil {
		t.Fatal("either site or app must be populated")
	}

	var parsed openrtb2.BidRequest
	if err := json.Unmarshal(req.Payload, &parsed); err != nil {
		t.Fatalf("payload must round-trip as OpenRTB JSON: %v", err)
	}
	if parsed.ID != req.ID {
		t.Fatalf("payload id mismatch: %q", parsed.ID)
	}
}

func TestGenerateUniqueIDs(t *testing.T) {
	g := New(Options{Seed: 2})
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		req, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if _, dup := seen[req.ID]; dup {
			t.Fatalf("duplicate request id %q", req.ID)
		}
		seen[req.ID] = struct{}{}
	}
}

func TestVideoProportion(t *testing.T) {
	g := New(Options{VideoProportion: 1.0, Seed: 3})
	for i := 0; i < 20; i++ {
		req, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !req.IsVideo() {
			t.Fatal("expected every request to be video with proportion 1.0")
		}
		imp := req.Bid.Imp[0]
		if imp.Video == nil {
			t.Fatal("video request must carry a video impression")
		}
		if imp.Banner != nil {
			t.Fatal("video impression must not carry a banner")
		}
		if imp.Video.StartDelay == nil {
			t.Fatal("video impression must declare a start delay")
		}
		if len(imp.Video.MIMEs) == 0 {
			t.Fatal("video impression must declare mime types")
		}
	}
}

func TestMobileProportion(t *testing.T) {
	g := New(Options{MobileProportion: 1.0, Seed: 4})
	for i := 0; i < 20; i++ {
		req, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if req.Kind != KindMobile {
			t.Fatal("expected every request to be mobile with proportion 1.0")
		}
		if req.Bid.Device.OS == "" {
			t.Fatal("mobile request must declare device OS")
		}
	}
}

func TestDisplayRequestHasBanner(t *testing.T) {
	g := New(Options{Seed: 5})
	req, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if req.Kind != KindDisplay {
		t.Skip("seed produced a non-display request")
	}
	imp := req.Bid.Imp[0]
	if imp.Banner == nil {
		t.Fatal("display impression must carry a banner")
	}
	if imp.Banner.W == nil || imp.Banner.H == nil {
		t.Fatal("banner must declare dimensions")
	}
}

func TestUserIDPool(t *testing.T) {
	pool := &staticFeeder{ids: []string{"user-a", "user-b"}}
	g := New(Options{UserIDs: pool, Seed: 6})

	first, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first.Bid.User.ID != "user-a" || second.Bid.User.ID != "user-b" {
		t.Fatalf("expected pool ids in order, got %q and %q",
			first.Bid.User.ID, second.Bid.User.ID)
	}
}

func TestRandomUserIDWithoutPool(t *testing.T) {
	g := New(Options{Seed: 7})
	req, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if req.Bid.User.ID == "" {
		t.Fatal("random user id must be generated without a pool")
	}
}
