package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	"gpsbridge/internal/bridge"
)

// Replay log format: line-oriented text.
//
//   - Blank lines and lines starting with '#' are ignored.
//   - "START" resets the time origin.
//   - "<t_ns>,<sentence>" is a sentence at t_ns nanoseconds after START.
//   - A line starting with '$' is an untimed sentence, paced at Rate per
//     second.

// ErrNoSentences is returned when a replay log holds nothing to play.
var ErrNoSentences = errors.New("replay: no sentences")

type LogLine struct {
	Start    bool
	Timed    bool
	At       time.Duration
	Sentence []byte
}

func ReadLog(r io.Reader) ([]LogLine, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 64*1024)

	var lines []LogLine
	n := 0
	for s.Scan() {
		n++
		line := strings.TrimSpace(s.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "START":
			lines = append(lines, LogLine{Start: true})
			continue
		case strings.HasPrefix(line, "$"):
			lines = append(lines, LogLine{Sentence: []byte(line)})
			continue
		}

		comma := strings.IndexByte(line, ',')
		if comma < 0 {
			return nil, fmt.Errorf("replay line %d: missing comma: %q", n, line)
		}
		tsStr := strings.TrimSpace(line[:comma])
		sentence := strings.TrimSpace(line[comma+1:])
		if !strings.HasPrefix(sentence, "$") {
			return nil, fmt.Errorf("replay line %d: sentence must start with '$': %q", n, line)
		}
		tsNs, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: invalid timestamp %q: %w", n, tsStr, err)
		}
		if tsNs < 0 {
			return nil, fmt.Errorf("replay line %d: negative timestamp %d", n, tsNs)
		}
		lines = append(lines, LogLine{Timed: true, At: time.Duration(tsNs), Sentence: []byte(sentence)})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

type ReplayConfig struct {
	Path string
	// Speed scales timed gaps: 2.0 plays twice as fast.
	Speed float64
	// Rate paces untimed sentences, per second.
	Rate int
	Loop bool
}

// Replay plays an NMEA log into the pipeline. Each sentence is fed with a
// CRLF terminator, as the receiver sends it.
type Replay struct {
	cfg   ReplayConfig
	st    *status
	lines []LogLine
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewReplay(cfg ReplayConfig) (*Replay, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("replay source: path is required")
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("replay source: speed must be > 0")
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("replay source: %w", err)
	}
	defer f.Close()
	lines, err := ReadLog(f)
	if err != nil {
		return nil, fmt.Errorf("replay source %s: %w", cfg.Path, err)
	}
	if countSentences(lines) == 0 {
		return nil, fmt.Errorf("replay source %s: %w", cfg.Path, ErrNoSentences)
	}
	return &Replay{cfg: cfg, st: newStatus("replay", cfg.Path), lines: lines, sleep: sleepCtx}, nil
}

func countSentences(lines []LogLine) int {
	n := 0
	for _, l := range lines {
		if !l.Start {
			n++
		}
	}
	return n
}

func (r *Replay) Name() string { return "replay " + r.cfg.Path }

func (r *Replay) Snapshot() Snapshot { return r.st.snapshot() }

func (r *Replay) Run(ctx context.Context, p *bridge.Pipeline) error {
	log.Printf("replay source path=%s sentences=%d speed=%.2f loop=%t", r.cfg.Path, countSentences(r.lines), r.cfg.Speed, r.cfg.Loop)
	r.st.setState("connected", "")
	rl := ratelimit.New(r.cfg.Rate)
	buf := make([]byte, 0, 128)

	for {
		var lastAt time.Duration
		haveLast := false
		for _, l := range r.lines {
			if ctx.Err() != nil {
				r.st.setState("stopped", "")
				return nil
			}
			if l.Start {
				haveLast = false
				continue
			}

			if l.Timed {
				if haveLast && l.At > lastAt {
					wait := time.Duration(float64(l.At-lastAt) / r.cfg.Speed)
					if !r.sleep(ctx, wait) {
						r.st.setState("stopped", "")
						return nil
					}
				}
				lastAt = l.At
				haveLast = true
			} else {
				rl.Take()
			}

			buf = append(buf[:0], l.Sentence...)
			buf = append(buf, '\r', '\n')
			p.Feed(buf)
			r.st.seen(len(buf))
		}
		if !r.cfg.Loop {
			r.st.setState("done", "")
			return nil
		}
	}
}
