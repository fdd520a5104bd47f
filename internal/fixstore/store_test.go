package fixstore

import (
	"sync"
	"testing"

	"gpsbridge/internal/fix"
)

func recordN(n int) fix.Record {
	return fix.Record{
		Valid:     n%2 == 0,
		Time:      fix.Time{Hour: uint8(n % 24), Minute: uint8(n % 60), Second: uint8(n % 60), Millisecond: uint16(n % 1000)},
		Date:      fix.Date{Day: uint8(n%31 + 1), Month: uint8(n%12 + 1), Year: uint8(n % 100)},
		Latitude:  fix.Latitude{Degrees: uint8(n % 91), Minutes: uint8(n % 60), DecimalMinutes: uint16(n % 10000), North: true},
		Longitude: fix.Longitude{Degrees: uint8(n % 181), Minutes: uint8(n % 60), DecimalMinutes: uint16(n % 10000)},
	}
}

func readAll(s *Store) []byte {
	out := make([]byte, 0, s.Size())
	for i := 0; ; i++ {
		b, ok := s.ReadByte(i)
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func mustDecode(t *testing.T, s *Store, b []byte) fix.Record {
	t.Helper()
	r, err := s.Layout().Decode(b)
	if err != nil {
		t.Fatalf("decode %X: %v", b, err)
	}
	return r
}

func TestStore_InitialRecordIsZero(t *testing.T) {
	s := New(fix.LayoutExtended)
	if got := mustDecode(t, s, readAll(s)); got != (fix.Record{}) {
		t.Fatalf("initial=%+v want zero", got)
	}
	if s.Seq() != 0 {
		t.Fatalf("seq=%d want 0", s.Seq())
	}
	if _, ok := s.ReadByte(s.Size()); ok {
		t.Fatalf("expected ReadByte past size to fail")
	}
	if _, ok := s.ReadByte(-1); ok {
		t.Fatalf("expected ReadByte(-1) to fail")
	}
}

func TestStore_PublishReplacesWholesale(t *testing.T) {
	s := New(fix.LayoutExtended)
	for i := 1; i <= 5; i++ {
		if !s.Publish(recordN(i)) {
			t.Fatalf("publish %d skipped", i)
		}
		if got := mustDecode(t, s, readAll(s)); got != recordN(i) {
			t.Fatalf("after publish %d got %+v", i, got)
		}
	}
	if s.Seq() != 5 {
		t.Fatalf("seq=%d want 5", s.Seq())
	}
}

func TestStore_TransactionSeesOneSnapshot(t *testing.T) {
	s := New(fix.LayoutLegacy)
	s.Publish(recordN(1))

	s.Begin()
	first := make([]byte, 0, s.Size())
	for i := 0; i < 4; i++ {
		b, _ := s.ReadByte(i)
		first = append(first, b)
	}

	// The inactive slot is free: this publish lands but is not visible to the
	// pinned transaction.
	if !s.Publish(recordN(2)) {
		t.Fatalf("first publish during transaction should use the free slot")
	}
	// Now the only writable slot is the pinned one.
	if s.Publish(recordN(3)) {
		t.Fatalf("second publish during transaction must be skipped")
	}
	if s.Skips() != 1 {
		t.Fatalf("skips=%d want 1", s.Skips())
	}

	for i := 4; i < s.Size(); i++ {
		b, _ := s.ReadByte(i)
		first = append(first, b)
	}
	if got := mustDecode(t, s, first); got != recordN(1) {
		t.Fatalf("transaction served %+v want record 1", got)
	}
	s.End()

	s.Begin()
	if got := mustDecode(t, s, readAll(s)); got != recordN(2) {
		t.Fatalf("next transaction served %+v want record 2", got)
	}
	s.End()
	if s.Pinned() {
		t.Fatalf("expected no pin after End")
	}
}

func TestStore_RepeatedBeginRepins(t *testing.T) {
	s := New(fix.LayoutExtended)
	s.Publish(recordN(1))
	s.Begin()
	s.Publish(recordN(2))
	// A repeated start without stop re-pins the newest snapshot.
	s.Begin()
	if got := s.Record(); got != recordN(2) {
		t.Fatalf("record=%+v want record 2", got)
	}
	s.End()
}

func TestStore_ConcurrentPublishNeverTears(t *testing.T) {
	s := New(fix.LayoutExtended)
	const publishes = 20000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= publishes; i++ {
			s.Publish(recordN(i))
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	seen := 0
	for {
		select {
		case <-done:
			if seen == 0 {
				t.Fatalf("reader never ran")
			}
			return
		default:
		}
		s.Begin()
		buf := readAll(s)
		s.End()
		seen++

		r := mustDecode(t, s, buf)
		if r == (fix.Record{}) {
			continue
		}
		// Every field of recordN derives from the same n; a torn read mixes two.
		n := int(r.Time.Millisecond)
		match := false
		for k := n; k <= publishes; k += 1000 {
			if recordN(k) == r {
				match = true
				break
			}
		}
		if !match {
			t.Fatalf("torn record %+v", r)
		}
	}
}
