package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gpsbridge/internal/config"
	"gpsbridge/internal/web"
)

func main() {
	var configPath string
	var summarize string
	flag.StringVar(&configPath, "config", "./gpsbridge.yaml", "Path to YAML config")
	flag.StringVar(&summarize, "summarize", "", "Print a summary of an NMEA replay log and exit")
	flag.Parse()

	if summarize != "" {
		if err := printLogSummary(os.Stdout, summarize); err != nil {
			log.Fatalf("summarize failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}
	defer rt.Close()

	log.Printf("gpsbridge starting")
	log.Printf("layout=%s record_size=%d overrun=%s", cfg.Bridge.Layout, cfg.Bridge.LayoutValue.Size(), cfg.Bridge.Overrun)

	if cfg.Web.Listen != "" {
		status := web.NewStatus()
		status.SetStatic(uint8(cfg.Bus.Address), cfg.Bus.Listen)
		status.SetProviders(rt.providers())
		go func() {
			log.Printf("web listen=%s", cfg.Web.Listen)
			if err := web.Serve(ctx, cfg.Web.Listen, status, logs); err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
				cancel()
			}
		}()
	}

	if err := rt.Run(ctx); err != nil {
		log.Printf("source stopped: %v", err)
	}
	log.Printf("gpsbridge stopping")
}
