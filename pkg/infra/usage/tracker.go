package usage

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

const (
	window = time.Hour

	logEvery       = 50
	warnThreshold  = 4500
	defaultAPIHost = "github.com"
)

// Tracker counts outbound calls to the remote code host within a rolling
// hourly window. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time

	limit int
	hosts []string
	now   func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithHosts adds hosts whose calls are counted, e.g. a GitHub Enterprise API host.
// github.com and its subdomains are always counted.
func WithHosts(hosts ...string) Option {
	return func(t *Tracker) {
		for _, h := range hosts {
			if h != "" {
				t.hosts = append(t.hosts, strings.ToLower(h))
			}
		}
	}
}

// New creates a Tracker whose first window ends one hour from now
func New(opts ...Option) *Tracker {
	t := &Tracker{
		limit: model.RateLimitPerHour,
		hosts: []string{defaultAPIHost},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.resetAt = t.now().Add(window)
	return t
}

func (t *Tracker) tracks(host string) bool {
	host = strings.ToLower(host)
	for _, h := range t.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// RecordCall counts a call to target and returns the updated count, or 0 when
// target is not on a tracked host.
func (t *Tracker) RecordCall(ctx context.Context, target *url.URL) int {
	if target == nil || !t.tracks(target.Hostname()) {
		return 0
	}

	t.mu.Lock()
	now := t.now()
	reset := false
	if now.After(t.resetAt) {
		t.count = 1
		t.resetAt = now.Add(window)
		reset = true
	} else {
		t.count++
	}
	count := t.count
	t.mu.Unlock()

	logger := ctxlog.From(ctx)
	if reset {
		logger.Info("Rate limit counter reset")
	}
	if count%logEvery == 0 || count > warnThreshold {
		remaining := t.limit - count
		logger.Info("GitHub API calls this hour",
			"used", count,
			"limit", t.limit,
			"remaining", remaining,
		)
		if count > warnThreshold {
			logger.Warn("Approaching GitHub API rate limit", "remaining", remaining)
		}
	}

	return count
}

// Usage returns a snapshot of the current window
func (t *Tracker) Usage() model.RateUsage {
	t.mu.Lock()
	used := t.count
	resetAt := t.resetAt
	now := t.now()
	t.mu.Unlock()

	untilReset := resetAt.Sub(now)
	if untilReset < 0 {
		untilReset = 0
	}

	return model.RateUsage{
		Used:           used,
		Limit:          t.limit,
		Remaining:      max(0, t.limit-used),
		Percentage:     int(math.Round(float64(used) / float64(t.limit) * 100)),
		ResetInMinutes: int(untilReset / time.Minute),
		ResetAt:        resetAt,
	}
}

// Transport wraps base so that every outbound request is recorded before it is sent
func (t *Tracker) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{base: base, tracker: t}
}

type transport struct {
	base    http.RoundTripper
	tracker *Tracker
}

func (x *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	x.tracker.RecordCall(req.Context(), req.URL)
	return x.base.RoundTrip(req)
}
