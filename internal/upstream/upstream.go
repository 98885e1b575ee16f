package upstream

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// BypassHeader tells the tunnel to skip its browser interstitial page.
const BypassHeader = "ngrok-skip-browser-warning"

// ErrNotConfigured is returned by Parse when no base URL is set.
var ErrNotConfigured = errors.New("upstream base URL not configured")

const ewmaAlpha = 0.2

// Upstream is the forwarding target. It starts healthy; only the health
// checker flips the flag.
type Upstream struct {
	base             *url.URL
	mutex            sync.Mutex
	healthy          bool
	inFlight         int
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

// New wraps an already parsed base URL. Any trailing slash is dropped from the path.
func New(base *url.URL) *Upstream {
	u := *base
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	return &Upstream{
		base:    &u,
		healthy: true,
	}
}

// Parse validates raw and returns an Upstream for it. An empty raw value
// yields ErrNotConfigured.
func Parse(raw string) (*Upstream, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNotConfigured
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream url %q: missing host", raw)
	}

	return New(u), nil
}

// URL returns a copy of the normalized base URL.
func (u *Upstream) URL() *url.URL {
	c := *u.base
	return &c
}

func (u *Upstream) String() string {
	return u.base.String()
}

// Resolve joins an escaped path and rawQuery onto the base URL without cleaning
// the path. Percent-encoded bytes such as %2F are kept as sent.
func (u *Upstream) Resolve(escapedPath, rawQuery string) string {
	target := u.URL()
	escaped := u.base.EscapedPath() + escapedPath
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		decoded = escaped
	}
	target.Path = decoded
	target.RawPath = escaped
	target.RawQuery = rawQuery
	return target.String()
}

func (u *Upstream) Acquire() {
	u.mutex.Lock()
	u.inFlight++
	u.mutex.Unlock()
}

func (u *Upstream) Release() {
	u.mutex.Lock()
	if u.inFlight > 0 {
		u.inFlight--
	}
	u.mutex.Unlock()
}

// InFlight returns the number of forwarded requests awaiting a response.
func (u *Upstream) InFlight() int {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.inFlight
}

func (u *Upstream) IsHealthy() bool {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.healthy
}

// SetHealthy updates the health flag and reports whether it changed.
func (u *Upstream) SetHealthy(healthy bool) (changed bool) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.healthy == healthy {
		return false
	}

	u.healthy = healthy
	return true
}

// RecordResponse folds the latest round trip duration into the moving average.
func (u *Upstream) RecordResponse(duration time.Duration) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		u.ewmaResponseTime = duration
		u.hasEWMA = true
		return
	}
	// ewma = (1 - α) * ewma + α * latest
	u.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(u.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime is zero until the first response is recorded.
func (u *Upstream) EWMATime() time.Duration {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		return 0
	}

	return u.ewmaResponseTime
}
