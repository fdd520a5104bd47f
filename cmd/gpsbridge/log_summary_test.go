package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpsbridge/internal/source"
)

const (
	rmcA = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	rmcV = "$GPRMC,123520,V,,,,,,,230394,,,N*5B"
	gga  = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	bad  = "$GPRMC,12x519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
)

func TestSentenceType(t *testing.T) {
	cases := map[string]string{
		rmcA:         "GPRMC",
		"$GNGSA*00":  "GNGSA",
		"$":          "?",
		"$PMTK001,1": "PMTK001",
	}
	for in, want := range cases {
		if got := sentenceType([]byte(in)); got != want {
			t.Fatalf("sentenceType(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSummarizeNMEALog(t *testing.T) {
	lines := []source.LogLine{
		{Start: true},
		{Timed: true, At: 0, Sentence: []byte(rmcA)},
		{Timed: true, At: 200 * time.Millisecond, Sentence: []byte(gga)},
		{Timed: true, At: 300 * time.Millisecond, Sentence: []byte(bad)},
		{Start: true},
		{Timed: true, At: 1 * time.Second, Sentence: []byte(rmcV)},
	}

	s := summarizeNMEALog(lines)
	if s.Segments != 2 {
		t.Fatalf("segments=%d want %d", s.Segments, 2)
	}
	if s.Sentences != 4 {
		t.Fatalf("sentences=%d want %d", s.Sentences, 4)
	}
	if s.Fixes != 2 || s.ValidFixes != 1 {
		t.Fatalf("fixes=%d valid=%d want 2/1", s.Fixes, s.ValidFixes)
	}
	if s.Invalid != 1 {
		t.Fatalf("invalid=%d want %d", s.Invalid, 1)
	}
	if s.TypeCounts["GPRMC"] != 3 || s.TypeCounts["GPGGA"] != 1 {
		t.Fatalf("type counts=%v", s.TypeCounts)
	}
	if s.MaxDuration != 1*time.Second {
		t.Fatalf("maxDuration=%s want %s", s.MaxDuration, 1*time.Second)
	}
	if s.First == nil || !s.First.Valid || s.Last == nil || s.Last.Valid {
		t.Fatalf("first=%v last=%v", s.First, s.Last)
	}
}

func TestSummarizeNMEALog_UntimedSingleSegment(t *testing.T) {
	s := summarizeNMEALog([]source.LogLine{{Sentence: []byte(rmcA)}, {Sentence: []byte(rmcA)}})
	if s.Segments != 1 || s.Sentences != 2 || s.MaxDuration != 0 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestPrintLogSummary(t *testing.T) {
	p := filepath.Join(t.TempDir(), "gps.nmea")
	content := "# captured on the bench\nSTART\n0," + rmcA + "\n500000000," + gga + "\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out bytes.Buffer
	if err := printLogSummary(&out, p); err != nil {
		t.Fatalf("printLogSummary: %v", err)
	}
	for _, want := range []string{
		"segments: 1\n",
		"sentences: 2\n",
		"fixes: 1 (valid 1)\n",
		"max_duration: 500ms\n",
		"first_fix: A 12:35:19.000 23/03/94",
		"  GPGGA: 1\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("summary missing %q:\n%s", want, out.String())
		}
	}

	if err := printLogSummary(&out, "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
