package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"gpsbridge/internal/bridge"
)

type TCPConfig struct {
	Addr string

	ReconnectDelay time.Duration
	// DialTimeout is used for each connect attempt.
	DialTimeout time.Duration
}

// TCP reads the receiver's raw byte stream from a serial-over-TCP server
// such as ser2net.
type TCP struct {
	cfg TCPConfig
	st  *status
	// hello is written after each connect.
	hello []byte

	mu   sync.Mutex
	conn net.Conn
}

func NewTCP(cfg TCPConfig) (*TCP, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("tcp source: addr is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	return &TCP{cfg: cfg, st: newStatus("tcp", cfg.Addr)}, nil
}

func (c *TCP) Name() string { return "tcp " + c.cfg.Addr }

func (c *TCP) Snapshot() Snapshot { return c.st.snapshot() }

func (c *TCP) Run(ctx context.Context, p *bridge.Pipeline) error {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	buf := make([]byte, 512)

	for {
		select {
		case <-ctx.Done():
			c.st.setState("stopped", "")
			return nil
		default:
		}

		c.st.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			c.st.setState("error", err.Error())
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				c.st.setState("stopped", "")
				return nil
			}
			continue
		}

		if len(c.hello) > 0 {
			if _, err := conn.Write(c.hello); err != nil {
				_ = conn.Close()
				c.st.setState("error", err.Error())
				if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
					c.st.setState("stopped", "")
					return nil
				}
				continue
			}
		}

		log.Printf("%s source connected addr=%s", c.st.kind, c.cfg.Addr)
		c.st.setState("connected", "")
		c.setConn(conn)
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

		for {
			n, err := conn.Read(buf)
			if n > 0 {
				p.Feed(buf[:n])
				c.st.seen(n)
			}
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					c.st.setState("disconnected", "")
				} else {
					c.st.setState("disconnected", err.Error())
				}
				break
			}
		}
		stop()
		c.setConn(nil)
		_ = conn.Close()

		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			c.st.setState("stopped", "")
			return nil
		}
	}
}

func (c *TCP) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Write sends bytes back to the receiver through the TCP server.
func (c *TCP) Write(b []byte) (int, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Write(b)
}
