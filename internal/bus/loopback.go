// Package bus provides a software peripheral bus controller so the bus
// server can be driven without hardware, plus a TCP front for remote masters.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"gpsbridge/internal/busserver"
)

var (
	// ErrCollision is returned by LoadNextByte when the transmit register
	// still holds a byte the master has not clocked out.
	ErrCollision = errors.New("bus: write collision")
	// ErrNoData means the peripheral released the clock without loading a byte.
	ErrNoData    = errors.New("bus: peripheral loaded no byte")
	ErrNoHandler = errors.New("bus: no handler registered")
)

// Status word bits, modelled on a typical MSSP/I2C target status register.
const (
	StatusData  uint8 = 1 << 0 // last byte was data (clear: address)
	StatusRead  uint8 = 1 << 1 // master reads from the peripheral
	StatusStart uint8 = 1 << 2
	StatusStop  uint8 = 1 << 3
	StatusWCOL  uint8 = 1 << 4 // write collision
	StatusOV    uint8 = 1 << 5 // receive overflow
)

// Handler is the peripheral's bus interrupt routine.
type Handler func(t busserver.Transport)

// Loopback is an in-process bus with one peripheral. It implements
// busserver.Transport for the handler and offers master operations.
//
// Events are delivered one at a time with mu held, so the handler never
// nests. Read and Write additionally hold txMu for the whole transaction so
// concurrent masters are serialized.
type Loopback struct {
	txMu sync.Mutex
	mu   sync.Mutex

	handler Handler
	status  uint8
	tx      byte
	txFull  bool
	inject  uint8

	transactions uint64
}

func NewLoopback(h Handler) *Loopback {
	return &Loopback{handler: h}
}

func (l *Loopback) SetHandler(h Handler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// busserver.Transport, valid only inside the handler.

func (l *Loopback) IsAddressPhase() bool     { return l.status&StatusData == 0 }
func (l *Loopback) IsReadDirection() bool    { return l.status&StatusRead != 0 }
func (l *Loopback) IsDataPhase() bool        { return l.status&StatusData != 0 }
func (l *Loopback) StartConditionSeen() bool { return l.status&StatusStart != 0 }
func (l *Loopback) StopConditionSeen() bool  { return l.status&StatusStop != 0 }

func (l *Loopback) LoadNextByte(b byte) error {
	if l.txFull {
		l.status |= StatusWCOL
		return ErrCollision
	}
	l.tx = b
	l.txFull = true
	return nil
}

func (l *Loopback) ClearErrorFlags() bool {
	set := l.status&(StatusWCOL|StatusOV) != 0
	l.status &^= StatusWCOL | StatusOV
	return set
}

// InjectCollision sets both error flags on the next event.
func (l *Loopback) InjectCollision() {
	l.mu.Lock()
	l.inject |= StatusWCOL | StatusOV
	l.mu.Unlock()
}

// Status returns the status word left by the last event.
func (l *Loopback) Status() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loopback) Transactions() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transactions
}

// raise delivers one event and, for read events, returns the byte the
// peripheral loaded.
func (l *Loopback) raise(status uint8) (byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler == nil {
		return 0, ErrNoHandler
	}
	l.status = status | l.inject
	l.inject = 0
	l.handler(l)

	if status&StatusRead == 0 || status&StatusStop != 0 {
		return 0, nil
	}
	if !l.txFull {
		return 0, ErrNoData
	}
	l.txFull = false
	return l.tx, nil
}

// Begin addresses the peripheral for reading and returns the first byte.
func (l *Loopback) Begin() (byte, error) {
	l.mu.Lock()
	l.transactions++
	l.mu.Unlock()
	return l.raise(StatusStart | StatusRead)
}

// Step clocks out one more data byte.
func (l *Loopback) Step() (byte, error) {
	return l.raise(StatusStart | StatusRead | StatusData)
}

// Stop ends the transaction. The data bit keeps the phase of the last byte,
// as the hardware does.
func (l *Loopback) Stop() error {
	_, err := l.raise(StatusStop | StatusData)
	return err
}

// Read runs one complete read transaction of n bytes.
func (l *Loopback) Read(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bus: read length %d", n)
	}
	l.txMu.Lock()
	defer l.txMu.Unlock()

	out := make([]byte, 0, n)
	b, err := l.Begin()
	if err != nil {
		_ = l.Stop()
		return nil, err
	}
	out = append(out, b)
	for len(out) < n {
		b, err := l.Step()
		if err != nil {
			_ = l.Stop()
			return out, fmt.Errorf("bus: byte %d: %w", len(out), err)
		}
		out = append(out, b)
	}
	return out, l.Stop()
}

// Write runs a write transaction. The address phase is delivered; data bytes
// are delivered as write-direction data events.
func (l *Loopback) Write(p []byte) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	l.mu.Lock()
	l.transactions++
	l.mu.Unlock()
	if _, err := l.raise(StatusStart); err != nil {
		return err
	}
	for range p {
		if _, err := l.raise(StatusStart | StatusData); err != nil {
			return err
		}
	}
	return l.Stop()
}
