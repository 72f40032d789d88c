package main

import (
	"context"
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bidprobe/bidprobe/internal/classifier"
	"github.com/bidprobe/bidprobe/internal/generator"
	"github.com/bidprobe/bidprobe/internal/httpclient"
	"github.com/bidprobe/bidprobe/internal/logbook"
	"github.com/bidprobe/bidprobe/internal/metrics"
	"github.com/bidprobe/bidprobe/internal/snippet"
	"github.com/bidprobe/bidprobe/internal/tracing"
)

// Fallback preview dimensions when the impression does not carry any.
const (
	defaultSnippetWidth  = 640
	defaultSnippetHeight = 480
)

// probe implements runner.Requester. One Do call synthesizes a bid
// request, sends it, classifies the response, and persists the outcome.
type probe struct {
	gen       *generator.Generator
	sender    *httpclient.Sender
	renderer  *snippet.Renderer
	collector *metrics.Collector
	book      *logbook.Book
	tracer    trace.Tracer
	propagate bool
	logger    *zap.Logger
}

// Do executes a single probe attempt and records the classified outcome.
// It returns an error only when the attempt lands in the error category,
// so the runner's failure count mirrors the collector's.
func (p *probe) Do(ctx context.Context) error {
	req, err := p.gen.Generate(ctx)
	if err != nil {
		return err
	}

	sendCtx := ctx
	var span trace.Span
	if p.tracer != nil {
		var spanCtx context.Context
		spanCtx, span = tracing.StartDispatchSpan(ctx, p.tracer, req.ID)
		if p.propagate {
			sendCtx = spanCtx
		}
	}

	status, body, sendErr := p.sender.Send(sendCtx, req.Payload)
	out := classifier.Classify(req, status, body, sendErr)

	p.collector.Record(out)
	if err := p.book.Record(out); err != nil {
		p.logger.Warn("outcome log write failed", zap.Error(err))
	}
	if out.Category == classifier.CategoryGood && out.HasBids() {
		p.renderSnippets(out)
	}

	if span != nil {
		tracing.EndSpan(span, sendErr,
			attribute.String("bidprobe.category", string(out.Category)),
			attribute.Int("http.response.status_code", status),
		)
	}

	if out.Category == classifier.CategoryError {
		if sendErr != nil {
			return sendErr
		}
		return fmt.Errorf("unexpected status %d", out.StatusCode)
	}
	return nil
}

// renderSnippets substitutes macros in each winning bid's markup and
// appends the result to the preview page.
func (p *probe) renderSnippets(out *classifier.Outcome) {
	for _, bid := range out.Bids() {
		html, err := p.renderer.Render(out.Request.Bid, bid)
		if err != nil {
			// Clean no-markup bids happen on video-only responses.
			continue
		}
		title := fmt.Sprintf("%s bid %s @ %.4f CPM", out.Request.ID, bid.ID, bid.Price)
		w, h := snippetDimensions(out.Request, bid)
		if err := p.book.AddSnippet(title, html, w, h); err != nil {
			p.logger.Warn("snippet write failed", zap.Error(err))
		}
	}
}

// snippetDimensions picks iframe dimensions from the impression the bid
// answered, preferring the bid's own declared size when present.
func snippetDimensions(req *generator.Request, bid *openrtb2.Bid) (int64, int64) {
	if bid.W > 0 && bid.H > 0 {
		return bid.W, bid.H
	}
	for i := range req.Bid.Imp {
		imp := &req.Bid.Imp[i]
		if imp.ID != bid.ImpID {
			continue
		}
		if imp.Banner != nil && imp.Banner.W != nil && imp.Banner.H != nil {
			return *imp.Banner.W, *imp.Banner.H
		}
		if imp.Video != nil && imp.Video.W != nil && imp.Video.H != nil {
			return *imp.Video.W, *imp.Video.H
		}
	}
	return defaultSnippetWidth, defaultSnippetHeight
}
