package bridge

import "sync/atomic"

// Stats are the cumulative serial and decode counters. None of the conditions
// they count stops the pipeline.
type Stats struct {
	Frames          uint64 `json:"frames"`
	FrameOverflows  uint64 `json:"frame_overflows"`
	RxFramingErrors uint64 `json:"rx_framing_errors"`
	RxOverruns      uint64 `json:"rx_overruns"`
	DecodeErrors    uint64 `json:"decode_errors"`
	SentenceSkips   uint64 `json:"sentence_skips"`
	Publishes       uint64 `json:"publishes"`
	PublishSkips    uint64 `json:"publish_skips"`
}

type counters struct {
	frames          atomic.Uint64
	frameOverflows  atomic.Uint64
	rxFramingErrors atomic.Uint64
	rxOverruns      atomic.Uint64
	decodeErrors    atomic.Uint64
	sentenceSkips   atomic.Uint64
	publishes       atomic.Uint64
	publishSkips    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Frames:          c.frames.Load(),
		FrameOverflows:  c.frameOverflows.Load(),
		RxFramingErrors: c.rxFramingErrors.Load(),
		RxOverruns:      c.rxOverruns.Load(),
		DecodeErrors:    c.decodeErrors.Load(),
		SentenceSkips:   c.sentenceSkips.Load(),
		Publishes:       c.publishes.Load(),
		PublishSkips:    c.publishSkips.Load(),
	}
}
