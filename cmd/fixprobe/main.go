// Command fixprobe acts as the bus master: it reads the published fix record
// from the peripheral over Linux I2C or the gpsbridge TCP bus front and
// prints it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gpsbridge/internal/bus"
	"gpsbridge/internal/fix"
	"gpsbridge/internal/i2c"
)

type recordReader interface {
	ReadRecord(l fix.Layout) (fix.Record, error)
}

// tcpReader reads records through the TCP bus front.
type tcpReader struct {
	c *bus.Client
}

func (r tcpReader) ReadRecord(l fix.Layout) (fix.Record, error) {
	b, err := r.c.Read(l.Size())
	if err != nil {
		return fix.Record{}, err
	}
	return l.Decode(b)
}

type probeOptions struct {
	Layout   fix.Layout
	Interval time.Duration
	Count    int
	JSON     bool
}

// probe reads Count records (0 means until ctx is done) and writes one line
// per record.
func probe(ctx context.Context, r recordReader, opts probeOptions, w io.Writer) error {
	enc := json.NewEncoder(w)
	for n := 0; opts.Count == 0 || n < opts.Count; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.Interval):
			}
		}
		rec, err := r.ReadRecord(opts.Layout)
		if err != nil {
			return err
		}
		if opts.JSON {
			if err := enc.Encode(rec); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "%s %s\n", time.Now().UTC().Format("15:04:05.000"), rec)
	}
	return nil
}

func main() {
	var (
		busPath  string
		addrStr  string
		layout   string
		tcpAddr  string
		interval time.Duration
		count    int
		asJSON   bool
	)
	flag.StringVar(&busPath, "bus", "/dev/i2c-1", "I2C adapter device")
	flag.StringVar(&addrStr, "addr", fmt.Sprintf("0x%02X", i2c.DefaultAddr), "7-bit peripheral address")
	flag.StringVar(&layout, "layout", "extended", "Record layout: extended or legacy")
	flag.StringVar(&tcpAddr, "tcp", "", "Read through a gpsbridge bus listener (host:port) instead of I2C")
	flag.DurationVar(&interval, "interval", time.Second, "Delay between reads")
	flag.IntVar(&count, "n", 1, "Number of reads, 0 for no limit")
	flag.BoolVar(&asJSON, "json", false, "Print records as JSON")
	flag.Parse()

	l, err := fix.ParseLayout(layout)
	if err != nil {
		log.Fatalf("invalid -layout: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var r recordReader
	if tcpAddr != "" {
		c, err := bus.Dial(ctx, tcpAddr, 2*time.Second)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer c.Close()
		r = tcpReader{c: c}
	} else {
		addr, err := strconv.ParseUint(addrStr, 0, 7)
		if err != nil {
			log.Fatalf("invalid -addr %q: %v", addrStr, err)
		}
		b, err := i2c.Open(busPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer b.Close()
		r = b.Dev(uint16(addr))
	}

	if err := probe(ctx, r, probeOptions{Layout: l, Interval: interval, Count: count, JSON: asJSON}, os.Stdout); err != nil {
		log.Fatalf("read failed: %v", err)
	}
}
