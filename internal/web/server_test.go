package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gpsbridge/internal/bridge"
	"gpsbridge/internal/fix"
	"gpsbridge/internal/ratecontrol"
	"gpsbridge/internal/source"
)

const rmc = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n"

func newTestStatus(t *testing.T) (*Status, *bridge.Pipeline) {
	t.Helper()
	p := bridge.New(bridge.Config{Layout: fix.LayoutExtended})
	p.Feed([]byte(rmc))

	st := NewStatus()
	st.SetStatic(0x1B, "127.0.0.1:10027")
	st.SetProviders(Providers{
		Bridge: p.Snapshot,
		Source: func() source.Snapshot {
			return source.Snapshot{Kind: "tcp", Target: "gps.local:2000", State: "connected", Bytes: uint64(len(rmc))}
		},
		RateControl: func() ratecontrol.Snapshot {
			return ratecontrol.Snapshot{Preset: 2, Command: "PMTK220,200", Sent: 3}
		},
	})
	return st, p
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(b)
}

func TestAPIStatus(t *testing.T) {
	st, _ := newTestStatus(t)
	ts := httptest.NewServer(Handler(st, nil))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var snap StatusSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "gpsbridge" {
		t.Fatalf("service=%q", snap.Service)
	}
	if snap.Bus.Address != "0x1B" || snap.Bus.Listen != "127.0.0.1:10027" {
		t.Fatalf("bus=%+v", snap.Bus)
	}
	if snap.Bridge == nil || !snap.Bridge.Record.Valid || snap.Bridge.Record.Time.Hour != 12 {
		t.Fatalf("bridge=%+v", snap.Bridge)
	}
	if snap.Bridge.Stats.Publishes != 1 || snap.Bridge.RecordSize != 17 {
		t.Fatalf("bridge stats=%+v size=%d", snap.Bridge.Stats, snap.Bridge.RecordSize)
	}
	if snap.Source == nil || snap.Source.State != "connected" {
		t.Fatalf("source=%+v", snap.Source)
	}
	if snap.RateControl == nil || snap.RateControl.Command != "PMTK220,200" {
		t.Fatalf("rate_control=%+v", snap.RateControl)
	}
}

func TestAPIStatus_OmitsMissingProviders(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil))
	defer ts.Close()

	_, body := get(t, ts.URL+"/api/status")
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	for _, k := range []string{"bridge", "source", "rate_control"} {
		if _, ok := m[k]; ok {
			t.Fatalf("unexpected %q in %s", k, body)
		}
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
}

func TestMetrics(t *testing.T) {
	st, p := newTestStatus(t)
	p.Feed([]byte("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"))

	ts := httptest.NewServer(Handler(st, nil))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	for _, want := range []string{
		"gpsbridge_frames_total 2",
		"gpsbridge_publishes_total 1",
		"gpsbridge_sentence_skips_total 1",
		"gpsbridge_fix_valid 1",
		"gpsbridge_bus_idle 1",
		`gpsbridge_source_up{kind="tcp"} 1`,
		`gpsbridge_source_bytes_total{kind="tcp"} 70`,
		"gpsbridge_rate_preset 2",
		"gpsbridge_rate_commands_total 3",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestRootPage(t *testing.T) {
	st, _ := newTestStatus(t)
	ts := httptest.NewServer(Handler(st, nil))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if !strings.Contains(body, "fix=A 12:35:19.000 23/03/94") {
		t.Fatalf("body=%s", body)
	}

	resp, _ = get(t, ts.URL+"/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", resp.StatusCode)
	}
}

func TestAbout(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil))
	defer ts.Close()

	_, body := get(t, ts.URL+"/api/about")
	var about AboutResponse
	if err := json.Unmarshal([]byte(body), &about); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(about.Layouts) != 2 || about.Layouts[0] != (LayoutInfo{"extended", 17}) || about.Layouts[1] != (LayoutInfo{"legacy", 15}) {
		t.Fatalf("layouts=%+v", about.Layouts)
	}
}
