// Package busserver serves the published fix record to a bus master, one byte
// per bus event, as a peripheral device.
package busserver

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tevino/abool/v2"
)

// Transport is the peripheral-side view of the bus controller. Every method
// is called from the bus event context and must not block, except
// LoadNextByte which may busy-wait briefly for the transmit register.
type Transport interface {
	// IsAddressPhase reports that the last byte received was an address.
	IsAddressPhase() bool
	// IsReadDirection reports that the master reads from this device.
	IsReadDirection() bool
	IsDataPhase() bool
	StartConditionSeen() bool
	StopConditionSeen() bool
	// LoadNextByte places b in the transmit register and releases the clock.
	LoadNextByte(b byte) error
	// ClearErrorFlags clears collision/overflow flags left by the previous
	// transfer and reports whether any was set.
	ClearErrorFlags() bool
}

// Source is the record the server reads from. *fixstore.Store implements it.
type Source interface {
	Begin()
	End()
	ReadByte(offset int) (byte, bool)
	Size() int
}

// OverrunPolicy selects what is served once the master reads past the record.
type OverrunPolicy uint8

const (
	OverrunZeroPad OverrunPolicy = iota
	OverrunWrap
	OverrunRepeatLast
)

func ParseOverrunPolicy(s string) (OverrunPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero", "zero_pad":
		return OverrunZeroPad, nil
	case "wrap":
		return OverrunWrap, nil
	case "repeat_last":
		return OverrunRepeatLast, nil
	default:
		return 0, fmt.Errorf("busserver: unknown overrun policy %q", s)
	}
}

func (p OverrunPolicy) String() string {
	switch p {
	case OverrunZeroPad:
		return "zero_pad"
	case OverrunWrap:
		return "wrap"
	case OverrunRepeatLast:
		return "repeat_last"
	default:
		return fmt.Sprintf("overrun(%d)", uint8(p))
	}
}

type State uint8

const (
	StateIdle State = iota
	StateAddressedRead
	StateDataRead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAddressedRead:
		return "addressed_read"
	case StateDataRead:
		return "data_read"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Counters are cumulative and may be read from any goroutine.
type Counters struct {
	Transactions  uint64 `json:"transactions"`
	BytesServed   uint64 `json:"bytes_served"`
	OverrunBytes  uint64 `json:"overrun_bytes"`
	ErrorsCleared uint64 `json:"errors_cleared"`
	LoadFailures  uint64 `json:"load_failures"`
}

// Server is the peripheral read state machine. Service, Stop, State and
// Remaining belong to the bus event context; Idle and Counters are safe from
// any goroutine.
type Server struct {
	src    Source
	policy OverrunPolicy

	state  State
	cursor int
	last   byte

	idle *abool.AtomicBool

	transactions  atomic.Uint64
	bytesServed   atomic.Uint64
	overrunBytes  atomic.Uint64
	errorsCleared atomic.Uint64
	loadFailures  atomic.Uint64
}

func New(src Source, policy OverrunPolicy) *Server {
	return &Server{src: src, policy: policy, idle: abool.NewBool(true)}
}

// Service handles one bus event.
func (s *Server) Service(t Transport) {
	if t.ClearErrorFlags() {
		s.errorsCleared.Add(1)
	}

	addr := t.IsAddressPhase()
	if t.StopConditionSeen() && !addr {
		s.stop()
		return
	}

	switch {
	case addr && t.IsReadDirection():
		// Repeated start or new transaction: always restart at offset 0.
		s.src.Begin()
		s.transactions.Add(1)
		s.cursor = 0
		s.state = StateAddressedRead
		s.idle.UnSet()
		s.serve(t)
	case addr:
		// Write transfers carry nothing this device stores.
		if s.state != StateIdle {
			s.stop()
		}
	case t.IsDataPhase() && t.IsReadDirection() && t.StartConditionSeen() && s.state != StateIdle:
		s.state = StateDataRead
		s.serve(t)
	}
}

// Stop ends the current transaction, as on a stop condition.
func (s *Server) Stop() { s.stop() }

func (s *Server) stop() {
	if s.state == StateIdle {
		return
	}
	s.src.End()
	s.state = StateIdle
	s.idle.Set()
}

func (s *Server) serve(t Transport) {
	b := s.next()
	s.cursor++
	if err := t.LoadNextByte(b); err != nil {
		s.loadFailures.Add(1)
		return
	}
	s.bytesServed.Add(1)
	s.last = b
}

func (s *Server) next() byte {
	if b, ok := s.src.ReadByte(s.cursor); ok {
		return b
	}
	s.overrunBytes.Add(1)
	switch s.policy {
	case OverrunWrap:
		if n := s.src.Size(); n > 0 {
			b, _ := s.src.ReadByte(s.cursor % n)
			return b
		}
		return 0
	case OverrunRepeatLast:
		return s.last
	default:
		return 0
	}
}

// Remaining is the number of record bytes left in the current transaction.
func (s *Server) Remaining() int {
	if s.state == StateIdle {
		return s.src.Size()
	}
	if r := s.src.Size() - s.cursor; r > 0 {
		return r
	}
	return 0
}

func (s *Server) State() State { return s.state }

// Idle reports whether no transaction is in flight.
func (s *Server) Idle() bool { return s.idle.IsSet() }

func (s *Server) Counters() Counters {
	return Counters{
		Transactions:  s.transactions.Load(),
		BytesServed:   s.bytesServed.Load(),
		OverrunBytes:  s.overrunBytes.Load(),
		ErrorsCleared: s.errorsCleared.Load(),
		LoadFailures:  s.loadFailures.Load(),
	}
}
