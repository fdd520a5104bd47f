package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gpsbridge/internal/busserver"
	"gpsbridge/internal/fix"
	"gpsbridge/internal/nmea"
	"gpsbridge/internal/ratecontrol"
)

type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	Bus         BusConfig         `yaml:"bus"`
	RateControl RateControlConfig `yaml:"rate_control"`
	Web         WebConfig         `yaml:"web"`
}

type SourceConfig struct {
	// Kind selects the byte source: serial, tcp, gpsd, replay or sim.
	Kind string `yaml:"kind"`

	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	// Addr is host:port of a serial-over-TCP server when Kind is tcp, or of
	// gpsd when Kind is gpsd.
	Addr string `yaml:"addr"`

	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	Replay ReplayConfig `yaml:"replay"`
	Sim    SimConfig    `yaml:"sim"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Rate  int     `yaml:"rate"`
	Loop  bool    `yaml:"loop"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	RadiusNm     float64       `yaml:"radius_nm"`
	Period       time.Duration `yaml:"period"`
	GroundKt     float64       `yaml:"ground_kt"`
	Interval     time.Duration `yaml:"interval"`
	VoidEvery    int           `yaml:"void_every"`
}

type BridgeConfig struct {
	FrameCapacity int    `yaml:"frame_capacity"`
	Layout        string `yaml:"layout"`
	Overrun       string `yaml:"overrun"`

	LayoutValue  fix.Layout              `yaml:"-"`
	OverrunValue busserver.OverrunPolicy `yaml:"-"`
}

type BusConfig struct {
	// Listen is the TCP address of the bus front. Empty disables it.
	Listen string `yaml:"listen"`
	// Address is the 7-bit peripheral address reported in status.
	Address int `yaml:"address"`
}

type RateControlConfig struct {
	Enable      bool          `yaml:"enable"`
	GPIOPin     int           `yaml:"gpio_pin"`
	Debounce    time.Duration `yaml:"debounce"`
	Presets     []string      `yaml:"presets"`
	MinInterval time.Duration `yaml:"min_interval"`
	// Initial, when set, is the preset applied once the source is up.
	Initial *int `yaml:"initial"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

const DefaultBusAddress = 0x1B

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() error {
	src := &cfg.Source
	src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
	if src.Kind == "" {
		src.Kind = "serial"
	}
	if src.ReconnectDelay <= 0 {
		src.ReconnectDelay = 2 * time.Second
	}
	switch src.Kind {
	case "serial":
		if src.Device == "" {
			return fmt.Errorf("source.device is required when source.kind is 'serial'")
		}
		if src.Baud == 0 {
			src.Baud = 9600
		}
		if src.Baud < 0 {
			return fmt.Errorf("source.baud must be > 0")
		}
	case "tcp":
		if src.Addr == "" {
			return fmt.Errorf("source.addr is required when source.kind is 'tcp'")
		}
	case "gpsd":
		if src.Addr == "" {
			src.Addr = "127.0.0.1:2947"
		}
	case "replay":
		if src.Replay.Path == "" {
			return fmt.Errorf("source.replay.path is required when source.kind is 'replay'")
		}
		if src.Replay.Speed == 0 {
			src.Replay.Speed = 1
		}
		if src.Replay.Speed < 0 {
			return fmt.Errorf("source.replay.speed must be > 0")
		}
		if src.Replay.Rate <= 0 {
			src.Replay.Rate = 1
		}
	case "sim":
	default:
		return fmt.Errorf("source.kind must be one of serial, tcp, gpsd, replay, sim (got %q)", src.Kind)
	}

	// Simulator defaults (safe even if another source is selected).
	if src.Sim.Period <= 0 {
		src.Sim.Period = 120 * time.Second
	}
	if src.Sim.RadiusNm <= 0 {
		src.Sim.RadiusNm = 0.5
	}
	if src.Sim.GroundKt <= 0 {
		src.Sim.GroundKt = 60
	}
	if src.Sim.Interval <= 0 {
		src.Sim.Interval = time.Second
	}
	if src.Sim.VoidEvery < 0 {
		return fmt.Errorf("source.sim.void_every must be >= 0")
	}

	br := &cfg.Bridge
	if br.FrameCapacity == 0 {
		br.FrameCapacity = nmea.DefaultFrameCapacity
	}
	if br.FrameCapacity < 16 || br.FrameCapacity > 4096 {
		return fmt.Errorf("bridge.frame_capacity must be between 16 and 4096")
	}
	layout, err := fix.ParseLayout(br.Layout)
	if err != nil {
		return fmt.Errorf("bridge.layout must be 'extended' or 'legacy'")
	}
	br.LayoutValue = layout
	br.Layout = layout.String()
	overrun, err := busserver.ParseOverrunPolicy(br.Overrun)
	if err != nil {
		return fmt.Errorf("bridge.overrun must be one of zero_pad, wrap, repeat_last")
	}
	br.OverrunValue = overrun
	br.Overrun = overrun.String()

	if cfg.Bus.Address == 0 {
		cfg.Bus.Address = DefaultBusAddress
	}
	if cfg.Bus.Address < 0x08 || cfg.Bus.Address > 0x77 {
		return fmt.Errorf("bus.address must be a 7-bit address between 0x08 and 0x77")
	}

	rc := &cfg.RateControl
	if rc.MinInterval <= 0 {
		rc.MinInterval = 500 * time.Millisecond
	}
	if rc.Debounce <= 0 {
		rc.Debounce = 20 * time.Millisecond
	}
	if len(rc.Presets) == 0 {
		rc.Presets = append([]string(nil), ratecontrol.DefaultPresets...)
	}
	for i, p := range rc.Presets {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("rate_control.presets[%d] is empty", i)
		}
	}
	if rc.Initial != nil {
		n := len(rc.Presets)
		if *rc.Initial < 0 || *rc.Initial >= n {
			return fmt.Errorf("rate_control.initial must be between 0 and %d", n-1)
		}
	}
	if (rc.Enable || rc.Initial != nil) && src.Kind != "serial" && src.Kind != "tcp" {
		return fmt.Errorf("rate_control requires source.kind 'serial' or 'tcp'")
	}

	return nil
}
