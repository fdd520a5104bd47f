package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gpsbridge/internal/fix"
	"gpsbridge/internal/nmea"
	"gpsbridge/internal/source"
)

type logSummary struct {
	Segments    int
	Sentences   int
	Fixes       int
	ValidFixes  int
	Invalid     int
	MaxDuration time.Duration
	TypeCounts  map[string]int
	First       *fix.Record
	Last        *fix.Record
}

func summarizeNMEALog(lines []source.LogLine) logSummary {
	s := logSummary{TypeCounts: map[string]int{}}

	segments := 0
	for _, l := range lines {
		if l.Start {
			segments++
			continue
		}
		s.Sentences++
		if l.Timed && l.At > s.MaxDuration {
			s.MaxDuration = l.At
		}

		s.TypeCounts[sentenceType(l.Sentence)]++

		var rec fix.Record
		err := nmea.Decode(l.Sentence, &rec)
		switch {
		case errors.Is(err, nmea.ErrSentenceType):
		case err != nil:
			s.Invalid++
		default:
			s.Fixes++
			if rec.Valid {
				s.ValidFixes++
			}
			if s.First == nil {
				first := rec
				s.First = &first
			}
			last := rec
			s.Last = &last
		}
	}
	if segments == 0 && s.Sentences > 0 {
		segments = 1
	}
	s.Segments = segments
	return s
}

// sentenceType returns the address field of a sentence, e.g. "GPRMC".
func sentenceType(sentence []byte) string {
	b := bytes.TrimPrefix(sentence, []byte("$"))
	if i := bytes.IndexAny(b, ",*"); i >= 0 {
		b = b[:i]
	}
	if len(b) == 0 {
		return "?"
	}
	return string(b)
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lines, err := source.ReadLog(f)
	if err != nil {
		return err
	}
	s := summarizeNMEALog(lines)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "sentences: %d\n", s.Sentences)
	fmt.Fprintf(w, "fixes: %d (valid %d)\n", s.Fixes, s.ValidFixes)
	fmt.Fprintf(w, "invalid_sentences: %d\n", s.Invalid)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	if s.First != nil {
		fmt.Fprintf(w, "first_fix: %s\n", s.First)
		fmt.Fprintf(w, "last_fix: %s\n", s.Last)
	}

	keys := make([]string, 0, len(s.TypeCounts))
	for k := range s.TypeCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "type_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.TypeCounts[k])
	}
	return nil
}
