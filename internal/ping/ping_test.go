package ping

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-sh/warden/internal/record"
)

func TestCheckerUnreachableWithinBound(t *testing.T) {
	c := NewChecker()
	start := time.Now()
	res := c.Probe(context.Background(), Endpoint{
		Host:     "127.0.0.1",
		Port:     1, // nothing listens here
		Protocol: record.ProtocolJava,
		Timeout:  500 * time.Millisecond,
	})
	assert.False(t, res.Reachable)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, res.PingedAt.IsZero())
}

func TestCheckerHonorsContext(t *testing.T) {
	c := NewChecker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Probe(ctx, Endpoint{
		Host:     "192.0.2.1", // TEST-NET, blackholed
		Port:     25565,
		Protocol: record.ProtocolJava,
		Timeout:  10 * time.Second,
	})
	assert.False(t, res.Reachable)
}

func TestOffline(t *testing.T) {
	res := Offline()
	assert.False(t, res.Reachable)
	assert.Zero(t, res.OnlinePlayers)
	assert.False(t, res.PingedAt.IsZero())
}

type stubProber struct {
	calls atomic.Int64
	res   Result
	delay time.Duration
}

func (s *stubProber) Probe(ctx context.Context, ep Endpoint) Result {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return s.res
}

func TestPoolDelegates(t *testing.T) {
	stub := &stubProber{res: Result{Reachable: true, OnlinePlayers: 5, PingedAt: time.Now()}}
	pool := NewPool(stub, 2)
	defer pool.Close()

	res := pool.Probe(context.Background(), Endpoint{Host: "h", Port: 1, Protocol: record.ProtocolJava})
	require.True(t, res.Reachable)
	assert.Equal(t, 5, res.OnlinePlayers)
	assert.Equal(t, int64(1), stub.calls.Load())
}

func TestPoolClosedReportsOffline(t *testing.T) {
	stub := &stubProber{res: Result{Reachable: true}}
	pool := NewPool(stub, 1)
	pool.Close()
	pool.Close() // idempotent

	res := pool.Probe(context.Background(), Endpoint{Host: "h", Port: 1})
	assert.False(t, res.Reachable)
}

func TestPoolContextCancelled(t *testing.T) {
	stub := &stubProber{res: Result{Reachable: true}, delay: time.Second}
	pool := NewPool(stub, 1)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	res := pool.Probe(ctx, Endpoint{Host: "h", Port: 1})
	assert.False(t, res.Reachable)
	assert.Less(t, time.Since(start), time.Second)
}
