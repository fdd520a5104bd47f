package web

import (
	"fmt"
	"sync/atomic"
	"time"

	"gpsbridge/internal/bridge"
	"gpsbridge/internal/ratecontrol"
	"gpsbridge/internal/source"
)

// Providers are the live components the status page reports on. Nil
// providers are omitted from the snapshot.
type Providers struct {
	Bridge      func() bridge.Snapshot
	Source      func() source.Snapshot
	RateControl func() ratecontrol.Snapshot
}

type Status struct {
	startUnixNano int64
	busAddr       atomic.Uint32
	busListen     atomic.Value // string
	providers     atomic.Value // Providers
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.busListen.Store("")
	s.providers.Store(Providers{})
	return s
}

// SetStatic records the configured peripheral address and the TCP bus front
// address, if any.
func (s *Status) SetStatic(busAddr uint8, busListen string) {
	s.busAddr.Store(uint32(busAddr))
	s.busListen.Store(busListen)
}

func (s *Status) SetProviders(p Providers) {
	s.providers.Store(p)
}

type BusInfo struct {
	Address string `json:"address"`
	Listen  string `json:"listen,omitempty"`
}

type StatusSnapshot struct {
	Service     string                `json:"service"`
	NowUTC      string                `json:"now_utc"`
	UptimeSec   int64                 `json:"uptime_sec"`
	Bus         BusInfo               `json:"bus"`
	Bridge      *bridge.Snapshot      `json:"bridge,omitempty"`
	Source      *source.Snapshot      `json:"source,omitempty"`
	RateControl *ratecontrol.Snapshot `json:"rate_control,omitempty"`
	Host        *HostSnapshot         `json:"host,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "gpsbridge",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Bus: BusInfo{
			Address: fmt.Sprintf("0x%02X", s.busAddr.Load()),
			Listen:  s.busListen.Load().(string),
		},
		Host: snapshotHost(nowUTC),
	}

	p := s.providers.Load().(Providers)
	if p.Bridge != nil {
		b := p.Bridge()
		snap.Bridge = &b
	}
	if p.Source != nil {
		src := p.Source()
		snap.Source = &src
	}
	if p.RateControl != nil {
		rc := p.RateControl()
		snap.RateControl = &rc
	}
	return snap
}
