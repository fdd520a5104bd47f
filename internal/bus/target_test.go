package bus

import (
	"bytes"
	"testing"

	"gpsbridge/internal/busserver"
	"gpsbridge/internal/fix"
)

func TestTarget_RequestServesRecord(t *testing.T) {
	_, st, srv := newPeripheral(t, fix.LayoutExtended)
	tg := NewTarget(srv.Service)

	got := append([]byte(nil), tg.Request(st.Size())...)
	if srv.Idle() {
		t.Fatalf("server idle before finish")
	}

	next := testRecord
	next.Time.Second = 59
	st.Publish(next)
	tg.Finish()
	if !srv.Idle() {
		t.Fatalf("server not idle after finish")
	}
	if want := wire(fix.LayoutExtended); !bytes.Equal(got, want) {
		t.Fatalf("reply % X want % X", got, want)
	}

	b := tg.Request(st.Size())
	tg.Finish()
	r, err := fix.LayoutExtended.Decode(b)
	if err != nil || r != next {
		t.Fatalf("second reply %+v err=%v want %+v", r, err, next)
	}
}

func TestTarget_OverrunUsesPolicy(t *testing.T) {
	_, st, _ := newPeripheral(t, fix.LayoutLegacy)
	srv := busserver.New(st, busserver.OverrunRepeatLast)
	tg := NewTarget(srv.Service)

	got := tg.Request(st.Size() + 2)
	tg.Finish()
	w := wire(fix.LayoutLegacy)
	want := append(w, w[len(w)-1], w[len(w)-1])
	if !bytes.Equal(got, want) {
		t.Fatalf("reply % X want % X", got, want)
	}
}

func TestTarget_SilentHandlerPadsZero(t *testing.T) {
	tg := NewTarget(func(busserver.Transport) {})
	if got := tg.Request(3); !bytes.Equal(got, []byte{0, 0, 0}) {
		t.Fatalf("reply % X", got)
	}
}

func TestTarget_ReceiveEndsNothing(t *testing.T) {
	_, st, srv := newPeripheral(t, fix.LayoutExtended)
	tg := NewTarget(srv.Service)
	tg.Receive([]byte{0x00, 0x01})
	tg.Finish()
	if c := srv.Counters(); c.Transactions != 0 || c.BytesServed != 0 {
		t.Fatalf("counters=%+v", c)
	}
	if got := tg.Request(st.Size()); !bytes.Equal(got, wire(fix.LayoutExtended)) {
		t.Fatalf("reply % X", got)
	}
}
