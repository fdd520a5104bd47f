package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"gpsbridge/internal/bridge"
	"gpsbridge/internal/bus"
	"gpsbridge/internal/config"
	"gpsbridge/internal/ratecontrol"
	"gpsbridge/internal/source"
	"gpsbridge/internal/web"
)

// bridgeRuntime wires one byte source through the pipeline to the emulated bus.
type bridgeRuntime struct {
	cfg      config.Config
	pipeline *bridge.Pipeline
	src      source.Source
	bus      *bus.Loopback
	listener *bus.Listener
	rate     *ratecontrol.Controller
	button   ratecontrol.Button
	presses  chan struct{}
}

// watchButton is replaced in tests.
var watchButton = ratecontrol.WatchButton

func newSource(cfg config.SourceConfig) (source.Source, error) {
	switch cfg.Kind {
	case "serial":
		return source.NewSerial(source.SerialConfig{
			Device:         cfg.Device,
			Baud:           cfg.Baud,
			ReconnectDelay: cfg.ReconnectDelay,
		})
	case "tcp":
		return source.NewTCP(source.TCPConfig{
			Addr:           cfg.Addr,
			ReconnectDelay: cfg.ReconnectDelay,
		})
	case "gpsd":
		return source.NewGPSD(source.GPSDConfig{
			Addr:           cfg.Addr,
			ReconnectDelay: cfg.ReconnectDelay,
		})
	case "replay":
		return source.NewReplay(source.ReplayConfig{
			Path:  cfg.Replay.Path,
			Speed: cfg.Replay.Speed,
			Rate:  cfg.Replay.Rate,
			Loop:  cfg.Replay.Loop,
		})
	case "sim":
		return source.NewSim(source.SimConfig{
			CenterLatDeg: cfg.Sim.CenterLatDeg,
			CenterLonDeg: cfg.Sim.CenterLonDeg,
			RadiusNm:     cfg.Sim.RadiusNm,
			Period:       cfg.Sim.Period,
			GroundKt:     cfg.Sim.GroundKt,
			Interval:     cfg.Sim.Interval,
			VoidEvery:    cfg.Sim.VoidEvery,
		})
	}
	return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
}

func newRuntime(cfg config.Config) (*bridgeRuntime, error) {
	src, err := newSource(cfg.Source)
	if err != nil {
		return nil, err
	}

	p := bridge.New(bridge.Config{
		FrameCapacity: cfg.Bridge.FrameCapacity,
		Layout:        cfg.Bridge.LayoutValue,
		Overrun:       cfg.Bridge.OverrunValue,
	})
	r := &bridgeRuntime{
		cfg:      cfg,
		pipeline: p,
		src:      src,
		bus:      bus.NewLoopback(p.OnBus),
	}

	if cfg.Bus.Listen != "" {
		ln, err := bus.Listen(cfg.Bus.Listen, r.bus)
		if err != nil {
			return nil, err
		}
		r.listener = ln
	}

	rc := cfg.RateControl
	if rc.Enable || rc.Initial != nil {
		w, ok := src.(io.Writer)
		if !ok {
			r.Close()
			return nil, fmt.Errorf("rate control: source %s does not accept commands", src.Name())
		}
		ctl, err := ratecontrol.New(w, ratecontrol.Config{Presets: rc.Presets, MinInterval: rc.MinInterval})
		if err != nil {
			r.Close()
			return nil, err
		}
		r.rate = ctl
	}
	if rc.Enable {
		r.presses = make(chan struct{}, 1)
		btn, err := watchButton(rc.GPIOPin, rc.Debounce, r.presses)
		if err != nil {
			// Keep running without the button; status still reports the preset.
			log.Printf("rate button init failed: %v", err)
		} else {
			r.button = btn
		}
	}
	return r, nil
}

func (r *bridgeRuntime) providers() web.Providers {
	p := web.Providers{
		Bridge: r.pipeline.Snapshot,
		Source: r.src.Snapshot,
	}
	if r.rate != nil {
		p.RateControl = r.rate.Snapshot
	}
	return p
}

// Run blocks until ctx is done or the source fails.
func (r *bridgeRuntime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if r.listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.listener.Serve(ctx); err != nil {
				log.Printf("bus listener stopped: %v", err)
			}
		}()
		log.Printf("bus listen=%s address=0x%02X", r.listener.Addr(), r.cfg.Bus.Address)
	}
	if r.rate != nil {
		if r.presses != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.rate.Run(ctx, r.presses)
			}()
		}
		if r.cfg.RateControl.Initial != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.applyInitial(ctx, *r.cfg.RateControl.Initial)
			}()
		}
	}

	log.Printf("source %s", r.src.Name())
	err := r.src.Run(ctx, r.pipeline)
	if err == nil && ctx.Err() == nil {
		log.Printf("source %s finished; serving last record", r.src.Name())
		<-ctx.Done()
	}
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyInitial retries until the source accepts the command.
func (r *bridgeRuntime) applyInitial(ctx context.Context, preset int) {
	for {
		err := r.rate.Apply(ctx, preset)
		if err == nil {
			log.Printf("ratecontrol: initial preset %d applied", preset)
			return
		}
		if !errors.Is(err, source.ErrNotConnected) {
			if ctx.Err() == nil {
				log.Printf("ratecontrol: initial preset %d: %v", preset, err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *bridgeRuntime) Close() {
	if r == nil {
		return
	}
	if r.button != nil {
		_ = r.button.Close()
		r.button = nil
	}
	if r.listener != nil {
		_ = r.listener.Close()
	}
}
