package main

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpsbridge/internal/bus"
	"gpsbridge/internal/config"
	"gpsbridge/internal/fix"
	"gpsbridge/internal/ratecontrol"
)

func loadConfig(t *testing.T, yaml string) config.Config {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gpsbridge.yaml")
	if err := os.WriteFile(p, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := config.Load(p)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startRuntime(t *testing.T, rt *bridgeRuntime) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()
	return func() {
		cancelCtx()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Run did not return after cancel")
		}
		rt.Close()
	}
}

func TestRuntime_ReplayServedOverBusListener(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gps.nmea")
	if err := os.WriteFile(logPath, []byte(gga+"\n"+rmcA+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := loadConfig(t, `
source:
  kind: replay
  replay:
    path: `+logPath+`
    rate: 100
bridge:
  layout: legacy
bus:
  listen: 127.0.0.1:0
`)
	rt, err := newRuntime(cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	stop := startRuntime(t, rt)
	defer stop()

	waitFor(t, "publish", func() bool { return rt.pipeline.Snapshot().Seq > 0 })
	waitFor(t, "source done", func() bool { return rt.src.Snapshot().State == "done" })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := bus.Dial(ctx, rt.listener.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	b, err := c.Read(fix.LayoutLegacy.Size())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	rec, err := fix.LayoutLegacy.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !rec.Valid || rec.Time.Hour != 12 || rec.Time.Minute != 35 || rec.Date.Year != 94 || !rec.Latitude.North {
		t.Fatalf("record=%s", rec)
	}

	snap := rt.pipeline.Snapshot()
	if snap.Stats.SentenceSkips != 1 || snap.Bus.Transactions != 1 {
		t.Fatalf("stats=%+v bus=%+v", snap.Stats, snap.Bus)
	}
}

type fakeButton struct{ closed bool }

func (b *fakeButton) Close() error {
	b.closed = true
	return nil
}

func TestRuntime_RateControlOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	received := make(chan string, 8)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			received <- sc.Text()
		}
	}()

	var presses chan<- struct{}
	btn := &fakeButton{}
	old := watchButton
	watchButton = func(pin int, debounce time.Duration, ch chan<- struct{}) (ratecontrol.Button, error) {
		if pin != 17 || debounce != 20*time.Millisecond {
			t.Errorf("pin=%d debounce=%s", pin, debounce)
		}
		presses = ch
		return btn, nil
	}
	defer func() { watchButton = old }()

	cfg := loadConfig(t, `
source:
  kind: tcp
  addr: `+ln.Addr().String()+`
rate_control:
  enable: true
  gpio_pin: 17
  min_interval: 10ms
  initial: 1
`)
	rt, err := newRuntime(cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	if rt.providers().RateControl == nil {
		t.Fatalf("rate control provider missing")
	}
	stop := startRuntime(t, rt)

	expect := func(want string) {
		t.Helper()
		select {
		case got := <-received:
			if strings.TrimRight(got, "\r") != want {
				t.Fatalf("receiver got %q want %q", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	expect("$PMTK220,500*2B")

	presses <- struct{}{}
	expect("$PMTK220,200*2C")
	waitFor(t, "preset 2", func() bool { return rt.rate.Snapshot().Preset == 2 })

	stop()
	if !btn.closed {
		t.Fatalf("button not closed")
	}
}

func TestNewRuntime_RateControlNeedsWritableSource(t *testing.T) {
	cfg := loadConfig(t, "source:\n  kind: sim\n")
	initial := 0
	cfg.RateControl.Initial = &initial
	if _, err := newRuntime(cfg); err == nil || !strings.Contains(err.Error(), "does not accept commands") {
		t.Fatalf("err=%v", err)
	}
}

func TestNewRuntime_ButtonFailureIsNotFatal(t *testing.T) {
	old := watchButton
	watchButton = func(int, time.Duration, chan<- struct{}) (ratecontrol.Button, error) {
		return nil, os.ErrNotExist
	}
	defer func() { watchButton = old }()

	cfg := loadConfig(t, "source:\n  kind: tcp\n  addr: 127.0.0.1:1\nrate_control:\n  enable: true\n")
	rt, err := newRuntime(cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if rt.button != nil || rt.rate == nil {
		t.Fatalf("button=%v rate=%v", rt.button, rt.rate)
	}
}
