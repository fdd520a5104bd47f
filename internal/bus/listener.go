package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// Listener exposes a Loopback to remote masters over TCP.
//
// Each request is one byte n (1-255); the listener runs Read(n) on the bus
// and writes the n bytes back. A request of 0 is ignored.
type Listener struct {
	bus *Loopback
	ln  net.Listener

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	done   chan struct{}
}

func Listen(addr string, b *Loopback) (*Listener, error) {
	if b == nil {
		return nil, fmt.Errorf("bus listener: loopback is nil")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bus listener: %w", err)
	}
	return &Listener{bus: b, ln: ln, conns: make(map[net.Conn]struct{}), done: make(chan struct{})}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until ctx is done or Close is called.
func (l *Listener) Serve(ctx context.Context) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.done:
		}
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.wg.Wait()
				return nil
			}
			return fmt.Errorf("bus listener accept: %w", err)
		}
		if !l.track(conn) {
			_ = conn.Close()
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			l.handle(conn)
		}()
	}
}

func (l *Listener) track(c net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[c] = struct{}{}
	return true
}

func (l *Listener) untrack(c net.Conn) {
	l.mu.Lock()
	delete(l.conns, c)
	l.mu.Unlock()
	_ = c.Close()
}

func (l *Listener) handle(conn net.Conn) {
	var req [1]byte
	for {
		if _, err := io.ReadFull(conn, req[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("bus listener: %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		n := int(req[0])
		if n == 0 {
			continue
		}
		data, err := l.bus.Read(n)
		if err != nil {
			log.Printf("bus listener: read %d: %v", n, err)
			return
		}
		if _, err := conn.Write(data); err != nil {
			return
		}
	}
}

func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	for c := range l.conns {
		_ = c.Close()
	}
	l.mu.Unlock()
	return l.ln.Close()
}

// Client is the master side of the TCP protocol.
type Client struct {
	conn    net.Conn
	timeout time.Duration
}

func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bus dial %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Read performs one remote read transaction of n bytes.
func (c *Client) Read(n int) ([]byte, error) {
	if n <= 0 || n > 255 {
		return nil, fmt.Errorf("bus client: read length %d out of range", n)
	}
	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write([]byte{byte(n)}); err != nil {
		return nil, fmt.Errorf("bus client: request: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, fmt.Errorf("bus client: response: %w", err)
	}
	return buf, nil
}

func (c *Client) Close() error { return c.conn.Close() }
