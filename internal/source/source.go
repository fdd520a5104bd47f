// Package source feeds NMEA bytes into a bridge pipeline from a serial port,
// a TCP byte stream, a replay log or a simulator.
package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"gpsbridge/internal/bridge"
)

// ErrNotConnected is returned by Write while the source has no open line.
var ErrNotConnected = errors.New("source: not connected")

// Source runs until ctx is done or the input is exhausted.
type Source interface {
	Name() string
	Run(ctx context.Context, p *bridge.Pipeline) error
	Snapshot() Snapshot
}

type Snapshot struct {
	Kind        string `json:"kind"`
	Target      string `json:"target,omitempty"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Bytes       uint64 `json:"bytes"`
}

// status is the connection bookkeeping shared by all sources.
type status struct {
	kind   string
	target string

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	bytes    uint64
}

func newStatus(kind, target string) *status {
	return &status{kind: kind, target: target, state: "stopped"}
}

func (s *status) setState(state string, lastErr string) {
	s.mu.Lock()
	s.state = state
	if lastErr != "" {
		s.lastErr = lastErr
	} else if state == "connected" || state == "connecting" || state == "stopped" {
		s.lastErr = ""
	}
	s.mu.Unlock()
}

func (s *status) seen(n int) {
	s.mu.Lock()
	s.lastSeen = time.Now().UTC()
	s.bytes += uint64(n)
	s.mu.Unlock()
}

func (s *status) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		Kind:      s.kind,
		Target:    s.target,
		State:     s.state,
		LastError: s.lastErr,
		Bytes:     s.bytes,
	}
	if !s.lastSeen.IsZero() {
		out.LastSeenUTC = s.lastSeen.Format(time.RFC3339Nano)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
