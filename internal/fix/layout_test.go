package fix

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func sampleRecord() Record {
	return Record{
		Valid:     true,
		Time:      Time{Hour: 12, Minute: 35, Second: 19, Millisecond: 250},
		Date:      Date{Day: 23, Month: 3, Year: 94},
		Latitude:  Latitude{Degrees: 48, Minutes: 7, DecimalMinutes: 380, North: true},
		Longitude: Longitude{Degrees: 131, Minutes: 31, DecimalMinutes: 4168, East: false},
	}
}

func TestLayoutExtended_Golden(t *testing.T) {
	buf := make([]byte, MaxSize)
	n := LayoutExtended.Encode(buf, sampleRecord())
	if n != 17 {
		t.Fatalf("n=%d want 17", n)
	}
	want := []byte{
		FlagValid | FlagNorth,
		12, 35, 19,
		0x00, 0xFA,
		23, 3, 94,
		48, 7, 0x01, 0x7C,
		131, 31, 0x10, 0x48,
	}
	if !bytes.Equal(buf[:n], want) {
		t.Fatalf("encoded=% X want % X", buf[:n], want)
	}
}

func TestLayoutLegacy_Golden(t *testing.T) {
	buf := make([]byte, MaxSize)
	n := LayoutLegacy.Encode(buf, sampleRecord())
	if n != 15 {
		t.Fatalf("n=%d want 15", n)
	}
	want := []byte{
		FlagValid | FlagNorth,
		12, 35, 19,
		23, 3, 94,
		48, 7, 0x7C, 0x01,
		131, 31, 0x48, 0x10,
	}
	if !bytes.Equal(buf[:n], want) {
		t.Fatalf("encoded=% X want % X", buf[:n], want)
	}
}

func TestLayoutDecode_ReadsBackEncodedRecord(t *testing.T) {
	for _, l := range []Layout{LayoutExtended, LayoutLegacy} {
		t.Run(l.String(), func(t *testing.T) {
			in := sampleRecord()
			if l == LayoutLegacy {
				// Legacy layout carries no milliseconds.
				in.Time.Millisecond = 0
			}
			buf := make([]byte, MaxSize)
			l.Encode(buf, in)
			got, err := l.Decode(buf[:l.Size()])
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != in {
				t.Fatalf("got %+v want %+v", got, in)
			}
		})
	}
}

func TestLayoutDecode_ShortAndOutOfRange(t *testing.T) {
	if _, err := LayoutExtended.Decode(make([]byte, 10)); err == nil || !strings.Contains(err.Error(), "short") {
		t.Fatalf("err=%v want short record", err)
	}

	buf := make([]byte, MaxSize)
	LayoutExtended.Encode(buf, sampleRecord())
	buf[1] = 24
	if _, err := LayoutExtended.Decode(buf); err == nil || !strings.Contains(err.Error(), "hour") {
		t.Fatalf("err=%v want hour out of range", err)
	}
}

func TestRecordValidate(t *testing.T) {
	if err := (Record{}).Validate(); err != nil {
		t.Fatalf("zero record: %v", err)
	}
	cases := []struct {
		name string
		edit func(*Record)
		want string
	}{
		{"Day", func(r *Record) { r.Date.Day = 32 }, "day"},
		{"Month", func(r *Record) { r.Date.Month = 13 }, "month"},
		{"LatDegrees", func(r *Record) { r.Latitude.Degrees = 91 }, "latitude degrees"},
		{"LonDecimal", func(r *Record) { r.Longitude.DecimalMinutes = 10000 }, "longitude decimal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := sampleRecord()
			tc.edit(&r)
			if err := r.Validate(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want %q", err, tc.want)
			}
		})
	}
}

func TestRecordFloat(t *testing.T) {
	r := sampleRecord()
	if got, want := r.Latitude.Float(), 48+7.038/60; math.Abs(got-want) > 1e-9 {
		t.Fatalf("lat=%f want %f", got, want)
	}
	if got, want := r.Longitude.Float(), -(131 + 31.4168/60); math.Abs(got-want) > 1e-9 {
		t.Fatalf("lon=%f want %f", got, want)
	}
}

func TestParseLayout(t *testing.T) {
	cases := []struct {
		in   string
		want Layout
		err  bool
	}{
		{in: "", want: LayoutExtended},
		{in: "extended", want: LayoutExtended},
		{in: " Legacy ", want: LayoutLegacy},
		{in: "packed", err: true},
	}
	for _, tc := range cases {
		got, err := ParseLayout(tc.in)
		if tc.err {
			if err == nil {
				t.Fatalf("ParseLayout(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseLayout(%q)=%v,%v want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestRecordString(t *testing.T) {
	got := sampleRecord().String()
	want := "A 12:35:19.250 23/03/94 4807.0380N 13131.4168W"
	if got != want {
		t.Fatalf("String()=%q want %q", got, want)
	}

	r := sampleRecord()
	r.Latitude.DecimalMinutes = 38
	if got := r.String(); !strings.Contains(got, " 4807.0038N ") {
		t.Fatalf("String()=%q want 4807.0038N", got)
	}
}
