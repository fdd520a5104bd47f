// Package ratecontrol cycles the receiver through a list of update-rate
// commands, one step per button press.
package ratecontrol

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"gpsbridge/internal/nmea"
)

// DefaultPresets set the MTK position fix interval to 1 Hz, 2 Hz, 5 Hz and
// 10 Hz.
var DefaultPresets = []string{
	"PMTK220,1000",
	"PMTK220,500",
	"PMTK220,200",
	"PMTK220,100",
}

type Config struct {
	Presets []string
	// MinInterval is the shortest time between two commands on the wire.
	MinInterval time.Duration
}

type Snapshot struct {
	Preset    int    `json:"preset"`
	Command   string `json:"command,omitempty"`
	Sent      uint64 `json:"sent"`
	LastError string `json:"last_error,omitempty"`
}

type Controller struct {
	w        io.Writer
	payloads []string
	commands [][]byte
	rl       ratelimit.Limiter

	// step serializes a whole select-write-commit so concurrent Next and
	// Apply calls never target the same index.
	step sync.Mutex

	mu      sync.Mutex
	idx     int
	sent    uint64
	lastErr string
}

func New(w io.Writer, cfg Config) (*Controller, error) {
	if w == nil {
		return nil, fmt.Errorf("ratecontrol: writer is nil")
	}
	presets := cfg.Presets
	if len(presets) == 0 {
		presets = DefaultPresets
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 500 * time.Millisecond
	}
	c := &Controller{w: w, idx: -1, rl: ratelimit.New(1, ratelimit.Per(cfg.MinInterval))}
	for i, p := range presets {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("ratecontrol: preset %d is empty", i)
		}
		c.payloads = append(c.payloads, p)
		c.commands = append(c.commands, nmea.Command(p))
	}
	return c, nil
}

// Next advances to the following preset, wrapping at the end, and writes its
// command. It returns the index now in effect.
func (c *Controller) Next(ctx context.Context) (int, error) {
	c.step.Lock()
	defer c.step.Unlock()
	c.mu.Lock()
	idx := (c.idx + 1) % len(c.commands)
	c.mu.Unlock()
	return idx, c.apply(ctx, idx)
}

// Apply writes preset i.
func (c *Controller) Apply(ctx context.Context, i int) error {
	if i < 0 || i >= len(c.commands) {
		return fmt.Errorf("ratecontrol: preset %d out of range", i)
	}
	c.step.Lock()
	defer c.step.Unlock()
	return c.apply(ctx, i)
}

func (c *Controller) apply(ctx context.Context, i int) error {
	c.rl.Take()
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.w.Write(c.commands[i])

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err.Error()
		return fmt.Errorf("ratecontrol: write %s: %w", c.payloads[i], err)
	}
	c.idx = i
	c.sent++
	c.lastErr = ""
	return nil
}

// Run applies one Next per value received on presses until ctx is done.
func (c *Controller) Run(ctx context.Context, presses <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-presses:
			idx, err := c.Next(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("ratecontrol: %v", err)
				}
				continue
			}
			log.Printf("ratecontrol: preset %d %s", idx, c.payloads[idx])
		}
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Preset: c.idx, Sent: c.sent, LastError: c.lastErr}
	if c.idx >= 0 {
		s.Command = c.payloads[c.idx]
	}
	return s
}
