//go:build !linux

package uart

import (
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// openDevice uses the portable driver, which cannot report framing errors;
// every byte arrives as bridge.RxOK.
func openDevice(path string, baud int) (io.ReadWriteCloser, func() error, bool, error) {
	rw, err := serial.Open(serial.OpenOptions{
		PortName:        path,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, nil, false, err
	}
	return rw, nil, false, nil
}
