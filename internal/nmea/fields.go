package nmea

import (
	"errors"
	"fmt"
)

// MaxFields bounds the number of comma-separated fields kept per sentence.
// Fields past this are ignored.
const MaxFields = 24

var (
	ErrEmptyField    = errors.New("empty field")
	ErrNotDigit      = errors.New("non-digit character")
	ErrFieldWidth    = errors.New("unexpected field width")
	ErrOutOfRange    = errors.New("value out of range")
	ErrBadHemisphere = errors.New("unexpected hemisphere marker")
)

// ParseError reports the field that failed to decode.
type ParseError struct {
	Field int
	Name  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("nmea: field %d (%s): %v", e.Field, e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Fields is a tokenized sentence: slices into the original frame.
type Fields struct {
	f [MaxFields][]byte
	n int
}

// Tokenize splits a framed sentence on ',' after dropping the start marker,
// the checksum (from '*') and any trailing CR/LF. It does not allocate.
func Tokenize(frame []byte, out *Fields) {
	*out = Fields{}
	body := frame
	if len(body) > 0 && body[0] == StartMarker {
		body = body[1:]
	}
	for i, c := range body {
		if c == '*' || c == '\r' || c == '\n' {
			body = body[:i]
			break
		}
	}
	start := 0
	for i := 0; i <= len(body); i++ {
		if i < len(body) && body[i] != ',' {
			continue
		}
		if out.n == MaxFields {
			return
		}
		out.f[out.n] = body[start:i]
		out.n++
		start = i + 1
	}
}

func (fs *Fields) Len() int { return fs.n }

// Get returns field i, or nil when the sentence has fewer fields.
func (fs *Fields) Get(i int) []byte {
	if i < 0 || i >= fs.n {
		return nil
	}
	return fs.f[i]
}

// digits decodes exactly width ASCII digits from s as sum(d_i * 10^(width-1-i)).
func digits(s []byte, width int) (int, error) {
	if len(s) < width {
		return 0, ErrFieldWidth
	}
	v := 0
	for i := 0; i < width; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, ErrNotDigit
		}
		v = v*10 + int(c-'0')
	}
	return v, nil
}

// fraction decodes up to maxDigits digits following a '.', returning the
// value and the number of digits consumed. Extra digits are checked but
// dropped.
func fraction(s []byte, maxDigits int) (v int, n int, err error) {
	for i, c := range s {
		if c < '0' || c > '9' {
			return 0, 0, ErrNotDigit
		}
		if i < maxDigits {
			v = v*10 + int(c-'0')
			n++
		}
	}
	return v, n, nil
}

// scaled decodes a fraction to a fixed number of digits: short fractions are
// padded with zeros and long ones truncated.
func scaled(s []byte, width int) (int, error) {
	v, n, err := fraction(s, width)
	if err != nil {
		return 0, err
	}
	for ; n < width; n++ {
		v *= 10
	}
	return v, nil
}

func bounded(v, lo, hi int) error {
	if v < lo || v > hi {
		return ErrOutOfRange
	}
	return nil
}

// splitFraction separates "int.frac"; frac is nil when there is no '.'.
func splitFraction(s []byte) (whole, frac []byte) {
	for i, c := range s {
		if c == '.' {
			return s[:i], s[i+1:]
		}
	}
	return s, nil
}

// decodeTime parses hhmmss[.sss]. Fraction digits are scaled to milliseconds.
func decodeTime(s []byte) (h, m, sec, ms int, err error) {
	whole, frac := splitFraction(s)
	if len(whole) != 6 {
		return 0, 0, 0, 0, ErrFieldWidth
	}
	if h, err = digits(whole[0:2], 2); err != nil {
		return
	}
	if m, err = digits(whole[2:4], 2); err != nil {
		return
	}
	if sec, err = digits(whole[4:6], 2); err != nil {
		return
	}
	if err = bounded(h, 0, 23); err != nil {
		return
	}
	if err = bounded(m, 0, 59); err != nil {
		return
	}
	if err = bounded(sec, 0, 59); err != nil {
		return
	}
	ms, err = scaled(frac, 3)
	return
}

// decodeDate parses ddmmyy.
func decodeDate(s []byte) (d, mo, y int, err error) {
	if len(s) != 6 {
		return 0, 0, 0, ErrFieldWidth
	}
	if d, err = digits(s[0:2], 2); err != nil {
		return
	}
	if mo, err = digits(s[2:4], 2); err != nil {
		return
	}
	if y, err = digits(s[4:6], 2); err != nil {
		return
	}
	if err = bounded(d, 1, 31); err != nil {
		return
	}
	err = bounded(mo, 1, 12)
	return
}

// decodeAngle parses d..dmm[.ffff] with degWidth degree digits. The fraction
// is returned in 1e-4 minute units. At maxDeg the minutes must be zero.
func decodeAngle(s []byte, degWidth, maxDeg int) (deg, mins, dec int, err error) {
	whole, frac := splitFraction(s)
	if len(whole) != degWidth+2 {
		return 0, 0, 0, ErrFieldWidth
	}
	if deg, err = digits(whole[:degWidth], degWidth); err != nil {
		return
	}
	if mins, err = digits(whole[degWidth:], 2); err != nil {
		return
	}
	if err = bounded(deg, 0, maxDeg); err != nil {
		return
	}
	if err = bounded(mins, 0, 59); err != nil {
		return
	}
	if dec, err = scaled(frac, 4); err != nil {
		return
	}
	if deg == maxDeg && (mins != 0 || dec != 0) {
		err = ErrOutOfRange
	}
	return
}

// decodeFlag reports whether the field's first character is marker. other
// is the only other accepted character; an empty other accepts anything.
func decodeFlag(s []byte, marker, other byte) (bool, error) {
	if len(s) == 0 {
		return false, ErrEmptyField
	}
	if s[0] == marker {
		return true, nil
	}
	if other != 0 && s[0] != other {
		return false, ErrBadHemisphere
	}
	return false, nil
}
