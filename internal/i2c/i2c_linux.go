//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Master side of /dev/i2c-*. Transfers go through I2C_RDWR so a read is a
// single start/address/data.../stop transaction, which is what the GPS
// peripheral expects: it has no register pointer and always serves its
// record from byte 0.

const (
	i2cMsgRead = 0x0001
	i2cRdwr    = 0x0707
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2cRdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an opened adapter such as /dev/i2c-1. It is not safe for concurrent
// transfers.
type Bus struct {
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) Close() error {
	if b == nil || b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

// Dev is a peripheral at a 7-bit address.
type Dev struct {
	bus  *Bus
	addr uint16
}

// Read fills p in one read transaction.
func (d *Dev) Read(p []byte) error {
	return d.transfer(i2cMsgRead, p)
}

// Write sends p in one write transaction.
func (d *Dev) Write(p []byte) error {
	return d.transfer(0, p)
}

func (d *Dev) transfer(flags uint16, p []byte) error {
	if d == nil || d.bus == nil || d.bus.f == nil {
		return errors.New("i2c device is nil")
	}
	if d.addr == 0 || d.addr > 0x7F {
		return fmt.Errorf("invalid i2c addr 0x%X", d.addr)
	}
	if len(p) == 0 {
		return nil
	}
	if len(p) > 0xFFFF {
		return fmt.Errorf("i2c transfer of %d bytes too long", len(p))
	}

	m := i2cMsg{addr: d.addr, flags: flags, len: uint16(len(p)), buf: uintptr(unsafe.Pointer(&p[0]))}
	data := i2cRdwrData{msgs: uintptr(unsafe.Pointer(&m)), nmsgs: 1}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return fmt.Errorf("i2c %s addr 0x%02X: %w", d.bus.path, d.addr, errno)
	}
	return nil
}
