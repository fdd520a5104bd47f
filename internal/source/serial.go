package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"gpsbridge/internal/bridge"
	"gpsbridge/internal/uart"
)

type SerialConfig struct {
	Device string
	Baud   int

	ReconnectDelay time.Duration
}

// Serial drives the pipeline from a serial receiver, one receive event at a
// time, and reopens the device after read failures.
type Serial struct {
	cfg  SerialConfig
	st   *status
	open func(path string, baud int) (*uart.Port, error)

	mu   sync.Mutex
	port *uart.Port
}

func NewSerial(cfg SerialConfig) (*Serial, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial source: device is required")
	}
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	return &Serial{cfg: cfg, st: newStatus("serial", cfg.Device), open: uart.Open}, nil
}

func (s *Serial) Name() string { return "serial " + s.cfg.Device }

func (s *Serial) Snapshot() Snapshot { return s.st.snapshot() }

func (s *Serial) Run(ctx context.Context, p *bridge.Pipeline) error {
	for {
		if ctx.Err() != nil {
			s.st.setState("stopped", "")
			return nil
		}

		s.st.setState("connecting", "")
		port, err := s.open(s.cfg.Device, s.cfg.Baud)
		if err != nil {
			s.st.setState("error", err.Error())
			if !sleepCtx(ctx, s.cfg.ReconnectDelay) {
				s.st.setState("stopped", "")
				return nil
			}
			continue
		}

		log.Printf("serial source open device=%s baud=%d", s.cfg.Device, s.cfg.Baud)
		s.setPort(port)
		s.st.setState("connected", "")
		err = s.pump(ctx, port, p)
		s.setPort(nil)
		_ = port.Close()

		if ctx.Err() != nil {
			s.st.setState("stopped", "")
			return nil
		}
		msg := ""
		if err != nil && !errors.Is(err, io.EOF) {
			msg = err.Error()
		}
		s.st.setState("disconnected", msg)
		log.Printf("serial source device=%s closed: %v", s.cfg.Device, err)
		if !sleepCtx(ctx, s.cfg.ReconnectDelay) {
			s.st.setState("stopped", "")
			return nil
		}
	}
}

func (s *Serial) pump(ctx context.Context, port *uart.Port, p *bridge.Pipeline) error {
	for {
		if err := port.Wait(ctx); err != nil {
			return err
		}
		n := 0
		for port.Pending() {
			p.OnSerial(port)
			n++
		}
		s.st.seen(n)
	}
}

func (s *Serial) setPort(port *uart.Port) {
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
}

// Write sends bytes to the receiver, e.g. rate commands.
func (s *Serial) Write(b []byte) (int, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return 0, ErrNotConnected
	}
	return port.Write(b)
}
