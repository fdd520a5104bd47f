// Package fixstore publishes fix records to the bus side without locks.
//
// The store keeps two slots and one atomic state word. The state word holds
// the index of the active (published) slot and, while a bus transaction is in
// flight, the index of the slot that transaction pinned. Publish only ever
// writes the slot that is neither active nor pinned, then flips the active
// index with a CAS, so a reader that pinned a slot sees one snapshot for the
// whole transaction no matter how the two contexts interleave.
package fixstore

import (
	"sync/atomic"

	"gpsbridge/internal/fix"
)

const (
	activeBit = 1 << 0 // index of the published slot
	pinnedBit = 1 << 1 // a transaction holds a slot
	pinIdxBit = 1 << 2 // index of the pinned slot
)

type slot struct {
	rec  fix.Record
	wire [fix.MaxSize]byte
}

// Store is a two-slot fix store. Publish has a single writer (the decoder
// context); Begin/ReadByte/End have a single reader (the bus context).
type Store struct {
	layout fix.Layout
	size   int

	slots [2]slot
	state atomic.Uint32
	seq   atomic.Uint64
	skips atomic.Uint64
}

// New returns a store whose slots both hold the zero record.
func New(layout fix.Layout) *Store {
	s := &Store{layout: layout, size: layout.Size()}
	for i := range s.slots {
		layout.Encode(s.slots[i].wire[:], fix.Record{})
	}
	return s
}

func (s *Store) Layout() fix.Layout { return s.layout }

// Size is the number of bytes in one published record.
func (s *Store) Size() int { return s.size }

// Publish makes r the record served to the next bus transaction.
//
// It returns false without touching any slot when the only writable slot is
// still pinned by an in-flight transaction; the caller drops r.
func (s *Store) Publish(r fix.Record) bool {
	st := s.state.Load()
	target := (st & activeBit) ^ 1
	if st&pinnedBit != 0 && (st&pinIdxBit)>>2 == target {
		s.skips.Add(1)
		return false
	}

	// Begin can only pin the active slot, so target stays unpinned while it
	// is written.
	sl := &s.slots[target]
	sl.rec = r
	s.layout.Encode(sl.wire[:], r)

	for {
		next := (st &^ activeBit) | target
		if s.state.CompareAndSwap(st, next) {
			break
		}
		st = s.state.Load()
	}
	s.seq.Add(1)
	return true
}

// Begin pins the active slot for one transaction. A Begin without a
// matching End simply re-pins the current active slot.
func (s *Store) Begin() {
	for {
		st := s.state.Load()
		active := st & activeBit
		next := (st & activeBit) | pinnedBit | active<<2
		if s.state.CompareAndSwap(st, next) {
			return
		}
	}
}

// End releases the pinned slot.
func (s *Store) End() {
	for {
		st := s.state.Load()
		if s.state.CompareAndSwap(st, st&activeBit) {
			return
		}
	}
}

// Pinned reports whether a transaction currently holds a slot.
func (s *Store) Pinned() bool {
	return s.state.Load()&pinnedBit != 0
}

func (s *Store) readIndex() uint32 {
	st := s.state.Load()
	if st&pinnedBit != 0 {
		return (st & pinIdxBit) >> 2
	}
	return st & activeBit
}

// ReadByte returns the byte at offset in the pinned slot, or in the active
// slot outside a transaction. ok is false once offset reaches Size.
func (s *Store) ReadByte(offset int) (b byte, ok bool) {
	if offset < 0 || offset >= s.size {
		return 0, false
	}
	return s.slots[s.readIndex()].wire[offset], true
}

// Record returns the decoded form of the slot ReadByte serves. It belongs to
// the bus context, like ReadByte.
func (s *Store) Record() fix.Record {
	return s.slots[s.readIndex()].rec
}

// Seq counts successful publishes.
func (s *Store) Seq() uint64 { return s.seq.Load() }

// Skips counts publishes dropped because the writable slot was pinned.
func (s *Store) Skips() uint64 { return s.skips.Load() }
