package fix

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Layout selects the byte layout served to the bus master.
//
// LayoutExtended (17 bytes, multi-byte fields most-significant byte first):
//
//	0      flags: bit0 valid, bit1 north, bit2 east
//	1..3   hour, minute, second
//	4..5   millisecond
//	6..8   day, month, year
//	9..10  latitude degrees, minutes
//	11..12 latitude decimal minutes
//	13..14 longitude degrees, minutes
//	15..16 longitude decimal minutes
//
// LayoutLegacy (15 bytes) is the packed struct of the first peripheral
// firmware: flags, hour, minute, second, day, month, year, lat deg, lat min,
// lat decimal (little-endian), lon deg, lon min, lon decimal (little-endian).
type Layout uint8

const (
	LayoutExtended Layout = iota
	LayoutLegacy
)

const (
	FlagValid byte = 1 << 0
	FlagNorth byte = 1 << 1
	FlagEast  byte = 1 << 2
)

// MaxSize is the largest Size of any layout.
const MaxSize = 17

func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "extended":
		return LayoutExtended, nil
	case "legacy":
		return LayoutLegacy, nil
	default:
		return 0, fmt.Errorf("fix: unknown layout %q", s)
	}
}

func (l Layout) String() string {
	switch l {
	case LayoutExtended:
		return "extended"
	case LayoutLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

func (l Layout) Size() int {
	if l == LayoutLegacy {
		return 15
	}
	return 17
}

func flags(r Record) byte {
	var f byte
	if r.Valid {
		f |= FlagValid
	}
	if r.Latitude.North {
		f |= FlagNorth
	}
	if r.Longitude.East {
		f |= FlagEast
	}
	return f
}

// Encode writes r into dst and returns the number of bytes written. dst must
// hold at least l.Size() bytes. Encode does not allocate.
func (l Layout) Encode(dst []byte, r Record) int {
	_ = dst[l.Size()-1]
	dst[0] = flags(r)
	dst[1] = r.Time.Hour
	dst[2] = r.Time.Minute
	dst[3] = r.Time.Second
	if l == LayoutLegacy {
		dst[4] = r.Date.Day
		dst[5] = r.Date.Month
		dst[6] = r.Date.Year
		dst[7] = r.Latitude.Degrees
		dst[8] = r.Latitude.Minutes
		binary.LittleEndian.PutUint16(dst[9:11], r.Latitude.DecimalMinutes)
		dst[11] = r.Longitude.Degrees
		dst[12] = r.Longitude.Minutes
		binary.LittleEndian.PutUint16(dst[13:15], r.Longitude.DecimalMinutes)
		return 15
	}
	binary.BigEndian.PutUint16(dst[4:6], r.Time.Millisecond)
	dst[6] = r.Date.Day
	dst[7] = r.Date.Month
	dst[8] = r.Date.Year
	dst[9] = r.Latitude.Degrees
	dst[10] = r.Latitude.Minutes
	binary.BigEndian.PutUint16(dst[11:13], r.Latitude.DecimalMinutes)
	dst[13] = r.Longitude.Degrees
	dst[14] = r.Longitude.Minutes
	binary.BigEndian.PutUint16(dst[15:17], r.Longitude.DecimalMinutes)
	return 17
}

// Decode parses a record read from the bus. Bytes past l.Size() are ignored.
func (l Layout) Decode(b []byte) (Record, error) {
	if len(b) < l.Size() {
		return Record{}, fmt.Errorf("fix: short %s record: %d bytes, want %d", l, len(b), l.Size())
	}
	var r Record
	r.Valid = b[0]&FlagValid != 0
	r.Latitude.North = b[0]&FlagNorth != 0
	r.Longitude.East = b[0]&FlagEast != 0
	r.Time.Hour = b[1]
	r.Time.Minute = b[2]
	r.Time.Second = b[3]
	if l == LayoutLegacy {
		r.Date.Day = b[4]
		r.Date.Month = b[5]
		r.Date.Year = b[6]
		r.Latitude.Degrees = b[7]
		r.Latitude.Minutes = b[8]
		r.Latitude.DecimalMinutes = binary.LittleEndian.Uint16(b[9:11])
		r.Longitude.Degrees = b[11]
		r.Longitude.Minutes = b[12]
		r.Longitude.DecimalMinutes = binary.LittleEndian.Uint16(b[13:15])
	} else {
		r.Time.Millisecond = binary.BigEndian.Uint16(b[4:6])
		r.Date.Day = b[6]
		r.Date.Month = b[7]
		r.Date.Year = b[8]
		r.Latitude.Degrees = b[9]
		r.Latitude.Minutes = b[10]
		r.Latitude.DecimalMinutes = binary.BigEndian.Uint16(b[11:13])
		r.Longitude.Degrees = b[13]
		r.Longitude.Minutes = b[14]
		r.Longitude.DecimalMinutes = binary.BigEndian.Uint16(b[15:17])
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}
