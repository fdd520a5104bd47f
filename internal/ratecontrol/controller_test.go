package ratecontrol

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	n    int
	fail error
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return 0, w.fail
	}
	w.n++
	return w.buf.Write(p)
}

func (w *recordingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *recordingWriter) writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

func TestController_CyclesDefaultPresets(t *testing.T) {
	var w recordingWriter
	c, err := New(&w, Config{MinInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s := c.Snapshot(); s.Preset != -1 || s.Command != "" {
		t.Fatalf("initial snapshot=%+v", s)
	}

	ctx := context.Background()
	var got []int
	for i := 0; i < 5; i++ {
		idx, err := c.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, idx)
	}
	want := []int{0, 1, 2, 3, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("indices=%v want %v", got, want)
		}
	}

	wantWire := "$PMTK220,1000*1F\r\n$PMTK220,500*2B\r\n$PMTK220,200*2C\r\n$PMTK220,100*2F\r\n$PMTK220,1000*1F\r\n"
	if w.String() != wantWire {
		t.Fatalf("wire=%q want %q", w.String(), wantWire)
	}
	s := c.Snapshot()
	if s.Preset != 0 || s.Command != "PMTK220,1000" || s.Sent != 5 {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestController_ConcurrentNextVisitsEachPresetInTurn(t *testing.T) {
	var w recordingWriter
	c, err := New(&w, Config{MinInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	const rounds = 2
	n := rounds * len(DefaultPresets)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Next(ctx); err != nil {
				t.Errorf("Next: %v", err)
			}
		}()
	}
	wg.Wait()

	want := strings.Repeat("$PMTK220,1000*1F\r\n$PMTK220,500*2B\r\n$PMTK220,200*2C\r\n$PMTK220,100*2F\r\n", rounds)
	if w.String() != want {
		t.Fatalf("wire=%q want %q", w.String(), want)
	}
	if s := c.Snapshot(); s.Sent != uint64(n) || s.Preset != len(DefaultPresets)-1 {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestController_WriteFailureKeepsPreset(t *testing.T) {
	w := recordingWriter{}
	c, err := New(&w, Config{Presets: []string{"PMTK220,1000", "$PMTK220,200*2C"}, MinInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}

	w.fail = errors.New("not connected")
	if _, err := c.Next(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	s := c.Snapshot()
	if s.Preset != 0 || s.LastError == "" {
		t.Fatalf("snapshot=%+v", s)
	}

	w.fail = nil
	idx, err := c.Next(context.Background())
	if err != nil || idx != 1 {
		t.Fatalf("Next=%d,%v", idx, err)
	}
	if !bytes.HasSuffix([]byte(w.String()), []byte("$PMTK220,200*2C\r\n")) {
		t.Fatalf("wire=%q", w.String())
	}
}

func TestController_Paced(t *testing.T) {
	var w recordingWriter
	c, err := New(&w, Config{MinInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if el := time.Since(start); el < 35*time.Millisecond {
		t.Fatalf("three commands took %s, want paced at 20ms", el)
	}
}

func TestController_RunHandlesPresses(t *testing.T) {
	var w recordingWriter
	c, err := New(&w, Config{MinInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	presses := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, presses)
		close(done)
	}()

	presses <- struct{}{}
	presses <- struct{}{}
	deadline := time.Now().Add(2 * time.Second)
	for w.writes() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("writes=%d want 2", w.writes())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	if s := c.Snapshot(); s.Preset != 1 {
		t.Fatalf("preset=%d want 1", s.Preset)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatalf("expected error for nil writer")
	}
	if _, err := New(&recordingWriter{}, Config{Presets: []string{"PMTK220,1000", " "}}); err == nil {
		t.Fatalf("expected error for empty preset")
	}
	c, _ := New(&recordingWriter{}, Config{MinInterval: time.Millisecond})
	if err := c.Apply(context.Background(), 9); err == nil {
		t.Fatalf("expected error for out-of-range preset")
	}
}
