// Package uart delivers serial receive events to the bridge pipeline.
//
// A Port models a hardware receiver: a reader goroutine fills a bounded FIFO,
// and when the FIFO is full the receiver latches an overrun that only
// ResetReceiver clears. On Linux the line discipline marks framing errors
// in-band and the port reports them as bridge.RxFramingError.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"gpsbridge/internal/bridge"
)

const DefaultFIFOSize = 4096

type rx struct {
	b  byte
	st bridge.RxStatus
}

type Port struct {
	rw    io.ReadWriteCloser
	flush func() error
	marks bool

	fifo    chan rx
	overrun atomic.Bool
	notify  chan struct{}

	wmu sync.Mutex

	errOnce sync.Once
	errc    chan struct{}
	err     error

	closeOnce sync.Once
}

// Open opens a serial device at baud with 8N1 framing.
func Open(path string, baud int) (*Port, error) {
	if path == "" {
		return nil, fmt.Errorf("uart: device is required")
	}
	if baud == 0 {
		baud = 9600
	}
	rw, flush, marks, err := openDevice(path, baud)
	if err != nil {
		return nil, fmt.Errorf("uart: open %s baud=%d: %w", path, baud, err)
	}
	return newPort(rw, flush, marks, DefaultFIFOSize), nil
}

// newPort starts the reader. marks selects in-band PARMRK decoding.
func newPort(rw io.ReadWriteCloser, flush func() error, marks bool, fifoSize int) *Port {
	if fifoSize <= 0 {
		fifoSize = DefaultFIFOSize
	}
	p := &Port{
		rw:     rw,
		flush:  flush,
		marks:  marks,
		fifo:   make(chan rx, fifoSize),
		notify: make(chan struct{}, 1),
		errc:   make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *Port) readLoop() {
	var dec markDecoder
	dec.passthrough = !p.marks
	buf := make([]byte, 256)
	for {
		n, err := p.rw.Read(buf)
		for _, b := range buf[:n] {
			dec.feed(b, p.push)
		}
		if n > 0 {
			p.signal()
		}
		if err != nil {
			p.fail(err)
			return
		}
	}
}

func (p *Port) push(b byte, st bridge.RxStatus) {
	select {
	case p.fifo <- rx{b: b, st: st}:
	default:
		p.overrun.Store(true)
	}
}

func (p *Port) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Port) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		close(p.errc)
	})
}

// ReceiveByte returns the next received byte without blocking.
func (p *Port) ReceiveByte() (byte, bridge.RxStatus) {
	if p.overrun.Load() {
		return 0, bridge.RxOverrun
	}
	select {
	case ev := <-p.fifo:
		return ev.b, ev.st
	default:
		return 0, bridge.RxEmpty
	}
}

// ResetReceiver discards everything buffered and clears a latched overrun.
func (p *Port) ResetReceiver() {
drain:
	for {
		select {
		case <-p.fifo:
		default:
			break drain
		}
	}
	if p.flush != nil {
		_ = p.flush()
	}
	p.overrun.Store(false)
}

// Pending reports whether ReceiveByte would return something other than
// RxEmpty.
func (p *Port) Pending() bool {
	return p.overrun.Load() || len(p.fifo) > 0
}

// Wait blocks until a receive event is pending, the reader fails or ctx is
// done. Buffered events are still delivered after the reader fails.
func (p *Port) Wait(ctx context.Context) error {
	for {
		if p.Pending() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.notify:
		case <-p.errc:
			if p.Pending() {
				return nil
			}
			if errors.Is(p.err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("uart: read: %w", p.err)
		}
	}
}

// Write sends raw bytes, such as receiver configuration commands.
func (p *Port) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.rw.Write(b)
}

func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.rw.Close() })
	return err
}

// markDecoder undoes PARMRK escaping: 0xFF 0xFF is a literal 0xFF and
// 0xFF 0x00 x is byte x received with a framing or parity error (x == 0 is a
// break).
type markDecoder struct {
	passthrough bool
	state       uint8
}

const (
	markIdle = iota
	markFF
	markFF00
)

func (d *markDecoder) feed(b byte, emit func(byte, bridge.RxStatus)) {
	if d.passthrough {
		emit(b, bridge.RxOK)
		return
	}
	switch d.state {
	case markFF:
		switch b {
		case 0xFF:
			d.state = markIdle
			emit(0xFF, bridge.RxOK)
		case 0x00:
			d.state = markFF00
		default:
			d.state = markIdle
			emit(0xFF, bridge.RxOK)
			d.feed(b, emit)
		}
	case markFF00:
		d.state = markIdle
		emit(b, bridge.RxFramingError)
	default:
		if b == 0xFF {
			d.state = markFF
			return
		}
		emit(b, bridge.RxOK)
	}
}
