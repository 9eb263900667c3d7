package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const robotsFallbackTLSHandshake = "robots.txt unreachable after TLS handshake timeouts"

var robotsProbeBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsAwareTransport wraps the base transport so that a catalog host whose
// robots.txt endpoint keeps timing out is treated as allow-all instead of
// failing every page request that colly gates behind it.
type robotsAwareTransport struct {
	base  http.RoundTripper
	state *robotsProbeState
	sleep func(context.Context, time.Duration) error
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if t.state == nil || !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport roundtrip: %w", err)
		}
		return resp, nil
	}
	sleep := t.sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	return t.state.probe(req, t.base, sleep)
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

type robotsProbeState struct {
	mu       sync.Mutex
	fallback map[string]string
}

func newRobotsProbeState() *robotsProbeState {
	return &robotsProbeState{fallback: make(map[string]string)}
}

// fallbackReason reports whether the host's robots.txt was replaced by the
// synthetic allow-all policy.
func (s *robotsProbeState) fallbackReason(host string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.fallback[host]
	return reason, ok
}

func (s *robotsProbeState) probe(
	req *http.Request,
	base http.RoundTripper,
	sleep func(context.Context, time.Duration) error,
) (*http.Response, error) {
	attempts := len(robotsProbeBackoff) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := base.RoundTrip(cloneRequest(req))
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) {
			return nil, fmt.Errorf("robots probe: %w", err)
		}
		if attempt == attempts-1 {
			s.markFallback(req.URL.Host, robotsFallbackTLSHandshake)
			return allowAllRobotsResponse(req), nil
		}
		if err := sleep(req.Context(), robotsProbeBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots probe backoff: %w", err)
		}
	}
	return nil, errors.New("robots probe exhausted retries")
}

func (s *robotsProbeState) markFallback(host, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fallback[host]; !ok {
		s.fallback[host] = reason
	}
}

func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = req.Body
	return clone
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func allowAllRobotsResponse(req *http.Request) *http.Response {
	const body = "User-agent: *\nAllow: /"
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTransientTLSError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
