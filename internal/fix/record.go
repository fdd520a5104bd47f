// Package fix holds the decoded GPS fix record and its fixed-size wire layouts.
package fix

import "fmt"

// Time is the UTC time of fix.
type Time struct {
	Hour        uint8  `json:"hour"`
	Minute      uint8  `json:"minute"`
	Second      uint8  `json:"second"`
	Millisecond uint16 `json:"millisecond"`
}

// Date is the calendar date of fix. Year has no century (0-99).
type Date struct {
	Day   uint8 `json:"day"`
	Month uint8 `json:"month"`
	Year  uint8 `json:"year"`
}

// Latitude keeps the sentence's ddmm.ffff split. DecimalMinutes is the
// fractional minute in units of 1e-4 minute, so 4807.038 is 48 degrees,
// 7 minutes, 380.
type Latitude struct {
	Degrees        uint8  `json:"degrees"`
	Minutes        uint8  `json:"minutes"`
	DecimalMinutes uint16 `json:"decimal_minutes"`
	North          bool   `json:"north"`
}

// Longitude mirrors Latitude with up to three degree digits.
type Longitude struct {
	Degrees        uint8  `json:"degrees"`
	Minutes        uint8  `json:"minutes"`
	DecimalMinutes uint16 `json:"decimal_minutes"`
	East           bool   `json:"east"`
}

// Record is the decoded GPS state at the last successful parse.
//
// The zero value is the initial state of every slot.
type Record struct {
	Valid     bool      `json:"valid"`
	Time      Time      `json:"time"`
	Date      Date      `json:"date"`
	Latitude  Latitude  `json:"latitude"`
	Longitude Longitude `json:"longitude"`
}

const (
	MaxLatitudeDegrees  = 90
	MaxLongitudeDegrees = 180
	MaxDecimalMinutes   = 9999

	// DecimalMinutesScale is the number of DecimalMinutes per minute.
	DecimalMinutesScale = 10000
)

// Float returns the signed latitude in degrees, negative south.
func (l Latitude) Float() float64 {
	v := angle(l.Degrees, l.Minutes, l.DecimalMinutes)
	if !l.North {
		v = -v
	}
	return v
}

// Float returns the signed longitude in degrees, negative west.
func (l Longitude) Float() float64 {
	v := angle(l.Degrees, l.Minutes, l.DecimalMinutes)
	if !l.East {
		v = -v
	}
	return v
}

func angle(deg, mins uint8, dec uint16) float64 {
	m := float64(mins) + float64(dec)/DecimalMinutesScale
	return float64(deg) + m/60
}

// Validate reports the first field outside its documented bounds. A day or
// month of 0 means the date is unknown (the zero record, or a void sentence
// without a date) and is accepted.
func (r Record) Validate() error {
	switch {
	case r.Time.Hour > 23:
		return fmt.Errorf("fix: hour %d out of range", r.Time.Hour)
	case r.Time.Minute > 59:
		return fmt.Errorf("fix: minute %d out of range", r.Time.Minute)
	case r.Time.Second > 59:
		return fmt.Errorf("fix: second %d out of range", r.Time.Second)
	case r.Time.Millisecond > 999:
		return fmt.Errorf("fix: millisecond %d out of range", r.Time.Millisecond)
	case r.Date.Day > 31:
		return fmt.Errorf("fix: day %d out of range", r.Date.Day)
	case r.Date.Month > 12:
		return fmt.Errorf("fix: month %d out of range", r.Date.Month)
	case r.Date.Year > 99:
		return fmt.Errorf("fix: year %d out of range", r.Date.Year)
	case r.Latitude.Degrees > MaxLatitudeDegrees:
		return fmt.Errorf("fix: latitude degrees %d out of range", r.Latitude.Degrees)
	case r.Latitude.Minutes > 59:
		return fmt.Errorf("fix: latitude minutes %d out of range", r.Latitude.Minutes)
	case r.Latitude.DecimalMinutes > MaxDecimalMinutes:
		return fmt.Errorf("fix: latitude decimal minutes %d out of range", r.Latitude.DecimalMinutes)
	case r.Longitude.Degrees > MaxLongitudeDegrees:
		return fmt.Errorf("fix: longitude degrees %d out of range", r.Longitude.Degrees)
	case r.Longitude.Minutes > 59:
		return fmt.Errorf("fix: longitude minutes %d out of range", r.Longitude.Minutes)
	case r.Longitude.DecimalMinutes > MaxDecimalMinutes:
		return fmt.Errorf("fix: longitude decimal minutes %d out of range", r.Longitude.DecimalMinutes)
	}
	return nil
}

// String renders the record in sentence-like notation for logs and tools.
func (r Record) String() string {
	status := "V"
	if r.Valid {
		status = "A"
	}
	ns := "S"
	if r.Latitude.North {
		ns = "N"
	}
	ew := "W"
	if r.Longitude.East {
		ew = "E"
	}
	return fmt.Sprintf("%s %02d:%02d:%02d.%03d %02d/%02d/%02d %02d%02d.%04d%s %03d%02d.%04d%s",
		status,
		r.Time.Hour, r.Time.Minute, r.Time.Second, r.Time.Millisecond,
		r.Date.Day, r.Date.Month, r.Date.Year,
		r.Latitude.Degrees, r.Latitude.Minutes, r.Latitude.DecimalMinutes, ns,
		r.Longitude.Degrees, r.Longitude.Minutes, r.Longitude.DecimalMinutes, ew,
	)
}
