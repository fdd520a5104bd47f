//go:build linux

package uart

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// openDevice puts the tty in raw 8N1 mode with framing errors marked in-band
// (INPCK|PARMRK, IGNPAR clear).
func openDevice(path string, baud int) (io.ReadWriteCloser, func() error, bool, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, nil, false, err
	}

	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, nil, false, err
	}
	spd, err := baudToUnix(baud)
	if err != nil {
		return nil, nil, false, err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.IGNPAR | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Iflag |= unix.INPCK | unix.PARMRK
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	// Block until at least one byte; no inter-byte timer.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, nil, false, err
	}

	f := os.NewFile(uintptr(fd), path)
	if f == nil {
		return nil, nil, false, fmt.Errorf("os.NewFile failed")
	}
	ok = true

	flush := func() error {
		return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)
	}
	return f, flush, true, nil
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}
