package bus

import "gpsbridge/internal/busserver"

// Target adapts a request/reply target controller, such as the RP2040's I2C
// target mode, to a per-byte Handler. The hardware reports a read request
// once and clocks out a whole reply buffer, so Request replays the address
// and data events the handler expects and collects what it loads.
type Target struct {
	h      Handler
	status uint8
	reply  []byte
	loaded bool
}

func NewTarget(h Handler) *Target {
	return &Target{h: h}
}

func (t *Target) IsAddressPhase() bool     { return t.status&StatusData == 0 }
func (t *Target) IsReadDirection() bool    { return t.status&StatusRead != 0 }
func (t *Target) IsDataPhase() bool        { return t.status&StatusData != 0 }
func (t *Target) StartConditionSeen() bool { return t.status&StatusStart != 0 }
func (t *Target) StopConditionSeen() bool  { return t.status&StatusStop != 0 }

func (t *Target) LoadNextByte(b byte) error {
	if t.loaded {
		return ErrCollision
	}
	t.reply = append(t.reply, b)
	t.loaded = true
	return nil
}

// ClearErrorFlags reports false: the reply FIFO cannot collide.
func (t *Target) ClearErrorFlags() bool { return false }

func (t *Target) event(status uint8) {
	t.status = status
	t.loaded = false
	t.h(t)
}

// Request runs a read of n bytes and returns the reply. Bytes the handler
// did not load are sent as zero. The returned slice is reused by the next
// call.
func (t *Target) Request(n int) []byte {
	t.reply = t.reply[:0]
	for i := 0; i < n; i++ {
		if i == 0 {
			t.event(StatusStart | StatusRead)
		} else {
			t.event(StatusStart | StatusRead | StatusData)
		}
		if !t.loaded {
			t.reply = append(t.reply, 0)
		}
	}
	return t.reply
}

// Receive delivers a write transaction. The peripheral takes no commands, so
// only the phase changes matter.
func (t *Target) Receive(p []byte) {
	t.event(StatusStart)
	for range p {
		t.event(StatusStart | StatusData)
	}
}

// Finish delivers the stop condition.
func (t *Target) Finish() {
	t.event(StatusStop | StatusData)
}

var _ busserver.Transport = (*Target)(nil)
