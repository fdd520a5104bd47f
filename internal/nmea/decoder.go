package nmea

import (
	"errors"

	"gpsbridge/internal/fix"
)

var (
	ErrSentenceType  = errors.New("nmea: not an RMC sentence")
	ErrShortSentence = errors.New("nmea: too few fields")
)

// RMC field indices.
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
const (
	fieldType = iota
	fieldTime
	fieldStatus
	fieldLat
	fieldNS
	fieldLon
	fieldEW
	fieldSpeed
	fieldCourse
	fieldDate

	rmcMinFields = fieldDate + 1
)

// Decode parses one framed RMC sentence into rec.
//
// rec is written field by field as decoding proceeds; on error its contents
// are unspecified and the caller must not publish it. Decode does not
// allocate on success and never validates the checksum.
//
// A void sentence (status other than 'A') may leave time, position and date
// empty; those fields then decode as zero so the loss of fix can still be
// published.
func Decode(frame []byte, rec *fix.Record) error {
	var fs Fields
	Tokenize(frame, &fs)
	return DecodeFields(&fs, rec)
}

// DecodeFields is Decode for an already tokenized sentence.
func DecodeFields(fs *Fields, rec *fix.Record) error {
	typ := fs.Get(fieldType)
	if !isRMC(typ) {
		return ErrSentenceType
	}
	if fs.Len() < rmcMinFields {
		return ErrShortSentence
	}

	valid, err := decodeFlag(fs.Get(fieldStatus), 'A', 0)
	if err != nil {
		return &ParseError{Field: fieldStatus, Name: "status", Err: err}
	}
	rec.Valid = valid

	// Optional fields are only optional on void sentences.
	skip := func(i int) bool { return !valid && len(fs.Get(i)) == 0 }

	if !skip(fieldTime) {
		h, m, s, ms, err := decodeTime(fs.Get(fieldTime))
		if err != nil {
			return &ParseError{Field: fieldTime, Name: "time", Err: emptyOr(fs.Get(fieldTime), err)}
		}
		rec.Time = fix.Time{Hour: uint8(h), Minute: uint8(m), Second: uint8(s), Millisecond: uint16(ms)}
	}

	if !skip(fieldLat) {
		deg, mins, dec, err := decodeAngle(fs.Get(fieldLat), 2, fix.MaxLatitudeDegrees)
		if err != nil {
			return &ParseError{Field: fieldLat, Name: "latitude", Err: emptyOr(fs.Get(fieldLat), err)}
		}
		rec.Latitude.Degrees = uint8(deg)
		rec.Latitude.Minutes = uint8(mins)
		rec.Latitude.DecimalMinutes = uint16(dec)
	}
	if !skip(fieldNS) {
		north, err := decodeFlag(fs.Get(fieldNS), 'N', 'S')
		if err != nil {
			return &ParseError{Field: fieldNS, Name: "north/south", Err: err}
		}
		rec.Latitude.North = north
	}

	if !skip(fieldLon) {
		deg, mins, dec, err := decodeAngle(fs.Get(fieldLon), 3, fix.MaxLongitudeDegrees)
		if err != nil {
			return &ParseError{Field: fieldLon, Name: "longitude", Err: emptyOr(fs.Get(fieldLon), err)}
		}
		rec.Longitude.Degrees = uint8(deg)
		rec.Longitude.Minutes = uint8(mins)
		rec.Longitude.DecimalMinutes = uint16(dec)
	}
	if !skip(fieldEW) {
		east, err := decodeFlag(fs.Get(fieldEW), 'E', 'W')
		if err != nil {
			return &ParseError{Field: fieldEW, Name: "east/west", Err: err}
		}
		rec.Longitude.East = east
	}

	if !skip(fieldDate) {
		d, mo, y, err := decodeDate(fs.Get(fieldDate))
		if err != nil {
			return &ParseError{Field: fieldDate, Name: "date", Err: emptyOr(fs.Get(fieldDate), err)}
		}
		rec.Date = fix.Date{Day: uint8(d), Month: uint8(mo), Year: uint8(y)}
	}
	return nil
}

func isRMC(typ []byte) bool {
	n := len(typ)
	return n >= 3 && typ[n-3] == 'R' && typ[n-2] == 'M' && typ[n-1] == 'C'
}

func emptyOr(field []byte, err error) error {
	if len(field) == 0 {
		return ErrEmptyField
	}
	return err
}
