// Package bridge wires the serial side (framer and decoder) to the bus side
// (fix store and bus server) of the GPS peripheral.
//
// There are two execution contexts. The serial context calls OnSerial or Feed
// and owns the framer and the working record. The bus context calls OnBus and
// owns the bus server. They share only the fix store, which needs no lock.
// Snapshot may be called from anywhere.
package bridge

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gpsbridge/internal/busserver"
	"gpsbridge/internal/fix"
	"gpsbridge/internal/fixstore"
	"gpsbridge/internal/nmea"
)

// RxStatus is the outcome of one serial receive.
type RxStatus uint8

const (
	RxOK RxStatus = iota
	// RxFramingError means the byte arrived with a bad stop bit; it is dropped.
	RxFramingError
	// RxOverrun means the receiver lost data and must be reset.
	RxOverrun
	// RxEmpty means no byte was pending.
	RxEmpty
)

func (s RxStatus) String() string {
	switch s {
	case RxOK:
		return "ok"
	case RxFramingError:
		return "framing_error"
	case RxOverrun:
		return "overrun"
	case RxEmpty:
		return "empty"
	default:
		return fmt.Sprintf("rx(%d)", uint8(s))
	}
}

// Transport is the serial receiver as seen from the receive interrupt.
type Transport interface {
	ReceiveByte() (byte, RxStatus)
	// ResetReceiver clears an overrun so reception can continue.
	ResetReceiver()
}

type Config struct {
	FrameCapacity int
	Layout        fix.Layout
	Overrun       busserver.OverrunPolicy
}

// Snapshot is a point-in-time view of the pipeline for status reporting.
type Snapshot struct {
	Layout      string             `json:"layout"`
	RecordSize  int                `json:"record_size"`
	Record      fix.Record         `json:"record"`
	Fix         string             `json:"fix"`
	Seq         uint64             `json:"seq"`
	LastPublish time.Time          `json:"last_publish,omitempty"`
	BusIdle     bool               `json:"bus_idle"`
	Stats       Stats              `json:"stats"`
	Bus         busserver.Counters `json:"bus"`
	LastError   string             `json:"last_error,omitempty"`
}

type published struct {
	rec fix.Record
	at  time.Time
}

type lastError struct{ err error }

type Pipeline struct {
	cfg Config

	framer  *nmea.Framer
	fields  nmea.Fields
	working fix.Record

	store  *fixstore.Store
	server *busserver.Server

	stats   counters
	last    atomic.Value // published
	lastErr atomic.Value // lastError

	now func() time.Time
}

func New(cfg Config) *Pipeline {
	if cfg.FrameCapacity <= 0 {
		cfg.FrameCapacity = nmea.DefaultFrameCapacity
	}
	p := &Pipeline{cfg: cfg, now: time.Now}
	p.store = fixstore.New(cfg.Layout)
	p.server = busserver.New(p.store, cfg.Overrun)
	p.framer = nmea.NewFramer(cfg.FrameCapacity, p.handleFrame)
	p.last.Store(published{})
	p.lastErr.Store(lastError{})
	return p
}

// OnSerial services one serial receive event.
func (p *Pipeline) OnSerial(t Transport) {
	b, st := t.ReceiveByte()
	switch st {
	case RxOK:
		p.writeByte(b)
	case RxFramingError:
		p.stats.rxFramingErrors.Add(1)
	case RxOverrun:
		p.stats.rxOverruns.Add(1)
		t.ResetReceiver()
	}
}

// Feed pushes already received bytes through the framer, as if each had
// arrived through OnSerial with RxOK.
func (p *Pipeline) Feed(data []byte) {
	for _, b := range data {
		p.writeByte(b)
	}
}

func (p *Pipeline) writeByte(b byte) {
	before := p.framer.Overflows()
	_ = p.framer.WriteByte(b)
	if p.framer.Overflows() != before {
		p.stats.frameOverflows.Add(1)
	}
}

// OnBus services one bus event.
func (p *Pipeline) OnBus(t busserver.Transport) {
	p.server.Service(t)
}

func (p *Pipeline) handleFrame(frame []byte) {
	p.stats.frames.Add(1)

	p.working = fix.Record{}
	nmea.Tokenize(frame, &p.fields)
	err := nmea.DecodeFields(&p.fields, &p.working)
	switch {
	case errors.Is(err, nmea.ErrSentenceType):
		p.stats.sentenceSkips.Add(1)
	case err != nil:
		p.stats.decodeErrors.Add(1)
		p.lastErr.Store(lastError{err: err})
	default:
		if p.store.Publish(p.working) {
			p.stats.publishes.Add(1)
			p.last.Store(published{rec: p.working, at: p.now()})
		} else {
			p.stats.publishSkips.Add(1)
		}
	}
	p.working = fix.Record{}
}

func (p *Pipeline) Store() *fixstore.Store { return p.store }

func (p *Pipeline) Server() *busserver.Server { return p.server }

func (p *Pipeline) Snapshot() Snapshot {
	last := p.last.Load().(published)
	s := Snapshot{
		Layout:      p.cfg.Layout.String(),
		RecordSize:  p.store.Size(),
		Record:      last.rec,
		Fix:         last.rec.String(),
		Seq:         p.store.Seq(),
		LastPublish: last.at,
		BusIdle:     p.server.Idle(),
		Stats:       p.stats.snapshot(),
		Bus:         p.server.Counters(),
	}
	if le := p.lastErr.Load().(lastError); le.err != nil {
		s.LastError = le.err.Error()
	}
	return s
}
