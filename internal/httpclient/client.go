// Package httpclient posts bid requests to the target endpoint.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxResponseBytes caps how much of a response body is read. Bid
// responses are small; anything larger is hostile or broken.
const maxResponseBytes = 4 << 20

// Sender posts OpenRTB JSON payloads to a single endpoint.
type Sender struct {
	client  *http.Client
	target  string
	headers http.Header
}

// NewSender validates the target URL and prepares a Sender using the
// given client.
func NewSender(client *http.Client, target string, extraHeaders map[string]string) (*Sender, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return nil, errors.New("target URL must be http or https")
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("X-OpenRTB-Version", "2.6")
	for key, value := range extraHeaders {
		key = strings.TrimSpace(key)
		if key == "" || strings.ContainsAny(key, "\r\n") || strings.ContainsAny(value, "\r\n") {
			return nil, errors.New("invalid header " + key)
		}
		headers.Set(http.CanonicalHeaderKey(key), value)
	}

	return &Sender{client: client, target: target, headers: headers}, nil
}

// Send posts one payload and returns the status code and response body.
// A non-nil error means the request never completed at the transport
// level; HTTP error statuses are returned to the caller, not wrapped.
func (s *Sender) Send(ctx context.Context, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.target, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	for key, values := range s.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.ContentLength = int64(len(payload))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// NewClient builds an HTTP client tuned for sustained request streams.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
