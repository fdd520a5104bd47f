package nmea

const (
	StartMarker = '$'
	Terminator  = '\n'

	// DefaultFrameCapacity leaves headroom over the 82-byte NMEA 0183 maximum.
	DefaultFrameCapacity = 128
)

// Framer assembles a byte stream into '$'...'\n' frames.
//
// WriteByte runs in the serial receive context and does a constant amount of
// work per byte. A '$' seen while a frame is already being captured is kept as
// payload; capture only restarts after a terminator or an overflow.
//
// When the buffer fills before a terminator arrives, the offending byte is
// dropped, the partial frame is discarded and the framer waits for the next
// start marker.
type Framer struct {
	buf       []byte
	n         int
	capturing bool
	overflows uint64
	onFrame   func(frame []byte)
}

// NewFramer returns a framer with a fixed buffer of capacity bytes. onFrame
// receives each complete frame including both markers; the slice is only
// valid for the duration of the call.
func NewFramer(capacity int, onFrame func(frame []byte)) *Framer {
	if capacity <= 0 {
		capacity = DefaultFrameCapacity
	}
	return &Framer{buf: make([]byte, capacity), onFrame: onFrame}
}

// WriteByte advances the framer by one received byte. It never fails; the
// error return satisfies io.ByteWriter.
func (f *Framer) WriteByte(b byte) error {
	switch {
	case b == StartMarker && !f.capturing:
		f.n = 0
		f.capturing = true
		f.append(b)
	case !f.capturing:
		// Outside a frame.
	case b == Terminator:
		if !f.append(b) {
			return nil
		}
		if f.onFrame != nil {
			f.onFrame(f.buf[:f.n])
		}
		f.reset()
	default:
		f.append(b)
	}
	return nil
}

// Write feeds p byte by byte. It always consumes all of p.
func (f *Framer) Write(p []byte) (int, error) {
	for _, b := range p {
		_ = f.WriteByte(b)
	}
	return len(p), nil
}

func (f *Framer) append(b byte) bool {
	if f.n >= len(f.buf) {
		f.overflows++
		f.reset()
		return false
	}
	f.buf[f.n] = b
	f.n++
	return true
}

func (f *Framer) reset() {
	clear(f.buf[:f.n])
	f.n = 0
	f.capturing = false
}

// Capturing reports whether a '$' has been seen and the frame is still open.
func (f *Framer) Capturing() bool { return f.capturing }

// Len is the number of bytes captured so far in the current frame.
func (f *Framer) Len() int { return f.n }

// Cap is the largest frame, terminator included, that can be delivered.
func (f *Framer) Cap() int { return len(f.buf) }

// Overflows counts frames discarded because they did not fit.
func (f *Framer) Overflows() uint64 { return f.overflows }
