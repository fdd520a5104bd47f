package source

import (
	"context"
	"strings"
	"time"

	"gpsbridge/internal/bridge"
)

const DefaultGPSDAddr = "127.0.0.1:2947"

// gpsdWatch puts the connection in raw NMEA mode. gpsd still sends its JSON
// banner lines; the framer discards them since they carry no '$'.
const gpsdWatch = `?WATCH={"enable":true,"nmea":true}` + "\n"

type GPSDConfig struct {
	Addr           string
	ReconnectDelay time.Duration
}

// GPSD takes the receiver's sentences from a gpsd daemon that owns the
// serial port. gpsd does not pass writes through, so GPSD accepts no
// commands.
type GPSD struct {
	tcp *TCP
}

func NewGPSD(cfg GPSDConfig) (*GPSD, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	t, err := NewTCP(TCPConfig{Addr: addr, ReconnectDelay: cfg.ReconnectDelay})
	if err != nil {
		return nil, err
	}
	t.st = newStatus("gpsd", addr)
	t.hello = []byte(gpsdWatch)
	return &GPSD{tcp: t}, nil
}

func (g *GPSD) Name() string { return "gpsd " + g.tcp.cfg.Addr }

func (g *GPSD) Snapshot() Snapshot { return g.tcp.Snapshot() }

func (g *GPSD) Run(ctx context.Context, p *bridge.Pipeline) error {
	return g.tcp.Run(ctx, p)
}
