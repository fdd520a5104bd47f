package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gpsbridge/internal/bridge"
)

const namespace = "gpsbridge"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(bridge.Snapshot) uint64
}

// bridgeCollector exports one bridge snapshot per scrape.
type bridgeCollector struct {
	status *Status

	counters    []counterDesc
	fixValid    *prometheus.Desc
	busIdle     *prometheus.Desc
	seq         *prometheus.Desc
	lastPublish *prometheus.Desc
	sourceBytes *prometheus.Desc
	sourceUp    *prometheus.Desc
	ratePreset  *prometheus.Desc
	rateSent    *prometheus.Desc
}

func newCounter(name, help string, value func(bridge.Snapshot) uint64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		value: value,
	}
}

func newBridgeCollector(status *Status) *bridgeCollector {
	return &bridgeCollector{
		status: status,
		counters: []counterDesc{
			newCounter("frames_total", "Completed NMEA frames.", func(s bridge.Snapshot) uint64 { return s.Stats.Frames }),
			newCounter("frame_overflows_total", "Frames truncated at the framer capacity.", func(s bridge.Snapshot) uint64 { return s.Stats.FrameOverflows }),
			newCounter("rx_framing_errors_total", "Serial bytes dropped for framing errors.", func(s bridge.Snapshot) uint64 { return s.Stats.RxFramingErrors }),
			newCounter("rx_overruns_total", "Serial receiver overruns.", func(s bridge.Snapshot) uint64 { return s.Stats.RxOverruns }),
			newCounter("decode_errors_total", "Malformed position sentences.", func(s bridge.Snapshot) uint64 { return s.Stats.DecodeErrors }),
			newCounter("sentence_skips_total", "Sentences of other types.", func(s bridge.Snapshot) uint64 { return s.Stats.SentenceSkips }),
			newCounter("publishes_total", "Records published to the fix store.", func(s bridge.Snapshot) uint64 { return s.Stats.Publishes }),
			newCounter("publish_skips_total", "Decoded records dropped while a transaction pinned the spare slot.", func(s bridge.Snapshot) uint64 { return s.Stats.PublishSkips }),
			newCounter("bus_transactions_total", "Bus read transactions addressed to the peripheral.", func(s bridge.Snapshot) uint64 { return s.Bus.Transactions }),
			newCounter("bus_bytes_served_total", "Record bytes served on the bus.", func(s bridge.Snapshot) uint64 { return s.Bus.BytesServed }),
			newCounter("bus_overrun_bytes_total", "Bytes served past the end of the record.", func(s bridge.Snapshot) uint64 { return s.Bus.OverrunBytes }),
			newCounter("bus_errors_cleared_total", "Collision or overflow flags cleared before a load.", func(s bridge.Snapshot) uint64 { return s.Bus.ErrorsCleared }),
			newCounter("bus_load_failures_total", "Transmit register loads that collided.", func(s bridge.Snapshot) uint64 { return s.Bus.LoadFailures }),
		},
		fixValid:    prometheus.NewDesc(namespace+"_fix_valid", "1 when the published record carries a valid fix.", nil, nil),
		busIdle:     prometheus.NewDesc(namespace+"_bus_idle", "1 when no read transaction is in progress.", nil, nil),
		seq:         prometheus.NewDesc(namespace+"_record_seq", "Sequence number of the published record.", nil, nil),
		lastPublish: prometheus.NewDesc(namespace+"_last_publish_timestamp_seconds", "Unix time of the last publish.", nil, nil),
		sourceBytes: prometheus.NewDesc(namespace+"_source_bytes_total", "Bytes read from the byte source.", []string{"kind"}, nil),
		sourceUp:    prometheus.NewDesc(namespace+"_source_up", "1 while the byte source is connected.", []string{"kind"}, nil),
		ratePreset:  prometheus.NewDesc(namespace+"_rate_preset", "Index of the active update-rate preset, -1 before the first.", nil, nil),
		rateSent:    prometheus.NewDesc(namespace+"_rate_commands_total", "Update-rate commands written to the receiver.", nil, nil),
	}
}

func (c *bridgeCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.fixValid
	ch <- c.busIdle
	ch <- c.seq
	ch <- c.lastPublish
	ch <- c.sourceBytes
	ch <- c.sourceUp
	ch <- c.ratePreset
	ch <- c.rateSent
}

func (c *bridgeCollector) Collect(ch chan<- prometheus.Metric) {
	p := c.status.providers.Load().(Providers)

	if p.Bridge != nil {
		s := p.Bridge()
		for _, cd := range c.counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(s)))
		}
		ch <- prometheus.MustNewConstMetric(c.fixValid, prometheus.GaugeValue, boolFloat(s.Record.Valid))
		ch <- prometheus.MustNewConstMetric(c.busIdle, prometheus.GaugeValue, boolFloat(s.BusIdle))
		ch <- prometheus.MustNewConstMetric(c.seq, prometheus.GaugeValue, float64(s.Seq))
		if !s.LastPublish.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastPublish, prometheus.GaugeValue, float64(s.LastPublish.UnixNano())/1e9)
		}
	}
	if p.Source != nil {
		s := p.Source()
		ch <- prometheus.MustNewConstMetric(c.sourceBytes, prometheus.CounterValue, float64(s.Bytes), s.Kind)
		ch <- prometheus.MustNewConstMetric(c.sourceUp, prometheus.GaugeValue, boolFloat(s.State == "connected"), s.Kind)
	}
	if p.RateControl != nil {
		s := p.RateControl()
		ch <- prometheus.MustNewConstMetric(c.ratePreset, prometheus.GaugeValue, float64(s.Preset))
		ch <- prometheus.MustNewConstMetric(c.rateSent, prometheus.CounterValue, float64(s.Sent))
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRegistry returns a registry with the bridge collector and the usual Go
// runtime and process collectors.
func NewRegistry(status *Status) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newBridgeCollector(status),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
