package downloads

import (
	"io"
	"sync"
	"time"
)

// ProgressParams configures the three invariants spec.md §4.4 names for
// streaming downloads: stall detection, an overall wall-clock cap, and a
// minimum acceptable throughput.
type ProgressParams struct {
	StallTimeout time.Duration
	MaxTimeout   time.Duration
	MinSpeed     int64 // bytes/sec
}

// DefaultProgressParams matches spec.md's documented defaults.
func DefaultProgressParams() ProgressParams {
	return ProgressParams{
		StallTimeout: 60 * time.Second,
		MaxTimeout:   30 * time.Minute,
		MinSpeed:     1024,
	}
}

// clock abstracts time.Now so tests can drive elapsed time deterministically.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ProgressReader wraps an io.Reader, tracking whether the observed
// per-second rate stays at or above MinSpeed, and exposes Stalled/
// Expired for the caller's read loop to check between chunks.
type ProgressReader struct {
	r      io.Reader
	params ProgressParams
	clock  clock

	mu             sync.Mutex
	started        time.Time
	lastProgressAt time.Time
	windowStart    time.Time
	windowBytes    int64
	totalBytes     int64
}

// NewProgressReader wraps r with stall/max-timeout/min-speed tracking.
func NewProgressReader(r io.Reader, params ProgressParams) *ProgressReader {
	return newProgressReaderWithClock(r, params, realClock{})
}

func newProgressReaderWithClock(r io.Reader, params ProgressParams, c clock) *ProgressReader {
	now := c.Now()
	return &ProgressReader{
		r:              r,
		params:         params,
		clock:          c,
		started:        now,
		lastProgressAt: now,
		windowStart:    now,
	}
}

// Read implements io.Reader, updating progress bookkeeping; it does not
// itself return an error on stall/timeout — callers must check Stalled
// and Expired between reads since a streaming HTTP body's Read call can
// legitimately block for less than a full second.
func (p *ProgressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.mu.Lock()
		now := p.clock.Now()
		p.totalBytes += int64(n)
		p.windowBytes += int64(n)

		if elapsed := now.Sub(p.windowStart); elapsed >= time.Second {
			rate := float64(p.windowBytes) / elapsed.Seconds()
			if int64(rate) >= p.params.MinSpeed {
				p.lastProgressAt = now
			}
			p.windowStart = now
			p.windowBytes = 0
		}
		p.mu.Unlock()
	}
	return n, err
}

// Stalled reports whether no sufficient-rate progress has been observed
// for at least StallTimeout.
func (p *ProgressReader) Stalled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.Now().Sub(p.lastProgressAt) >= p.params.StallTimeout
}

// Expired reports whether the total elapsed time exceeds MaxTimeout.
func (p *ProgressReader) Expired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.Now().Sub(p.started) >= p.params.MaxTimeout
}

// BytesRead returns the total bytes read so far.
func (p *ProgressReader) BytesRead() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalBytes
}
