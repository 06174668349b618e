// Package ping probes game-server endpoints. A probe is a bounded network
// request returning reachability and basic metrics; it never surfaces a
// transport error to the caller.
package ping

import (
	"context"
	"regexp"
	"time"

	"github.com/warden-sh/warden/internal/record"
)

// DefaultTimeout bounds probes whose endpoint carries no explicit timeout.
const DefaultTimeout = 5 * time.Second

// Endpoint identifies one probe target.
type Endpoint struct {
	Host     string
	Port     int
	Protocol record.Protocol
	Timeout  time.Duration
}

// Result is always fully populated: an unreachable probe yields
// Reachable=false with zeroed metrics, never an error.
type Result struct {
	Reachable     bool          `json:"reachable"`
	OnlinePlayers int           `json:"online_players"`
	MaxPlayers    int           `json:"max_players"`
	Version       string        `json:"version,omitempty"`
	MOTD          string        `json:"motd,omitempty"`
	Latency       time.Duration `json:"latency,omitempty"`
	PingedAt      time.Time     `json:"pinged_at"`
}

// Offline returns the canonical unreachable result.
func Offline() Result { return Result{PingedAt: time.Now()} }

// Prober performs one probe. Implementations must honor ctx and the
// endpoint timeout and must never return an error-shaped result.
type Prober interface {
	Probe(ctx context.Context, ep Endpoint) Result
}

// Checker is the in-process Prober. It double-bounds every probe: even if
// a dialect decoder misbehaves past its deadline, the caller gets an
// offline result within timeout plus a small grace.
type Checker struct{}

func NewChecker() *Checker { return &Checker{} }

func (c *Checker) Probe(ctx context.Context, ep Endpoint) Result {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	done := make(chan Result, 1)
	go func() { done <- probeDialect(ep, timeout) }()
	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Offline()
	case <-time.After(timeout + 500*time.Millisecond):
		// Dialect overran its own deadline; treat as offline regardless.
		return Offline()
	}
}

func probeDialect(ep Endpoint, timeout time.Duration) Result {
	switch ep.Protocol {
	case record.ProtocolBedrock:
		return probeBedrock(ep.Host, ep.Port, timeout)
	default:
		return probeJava(ep.Host, ep.Port, timeout)
	}
}

var formattingCodes = regexp.MustCompile(`§[0-9A-FK-ORa-fk-or]`)

// stripFormatting removes legacy §-style color and style codes from MOTDs.
func stripFormatting(s string) string { return formattingCodes.ReplaceAllString(s, "") }
