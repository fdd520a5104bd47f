package i2c

import (
	"fmt"

	"gpsbridge/internal/fix"
)

// DefaultAddr is the GPS peripheral's 7-bit address.
const DefaultAddr = 0x1B

// ReadRecord reads one complete record in layout l and decodes it.
func (d *Dev) ReadRecord(l fix.Layout) (fix.Record, error) {
	var buf [fix.MaxSize]byte
	b := buf[:l.Size()]
	if err := d.Read(b); err != nil {
		return fix.Record{}, err
	}
	r, err := l.Decode(b)
	if err != nil {
		return fix.Record{}, fmt.Errorf("i2c: % X: %w", b, err)
	}
	return r, nil
}
