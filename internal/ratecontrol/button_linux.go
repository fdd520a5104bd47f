//go:build linux && (arm || arm64)

package ratecontrol

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// WatchButton requests the named BCM GPIO as a pulled-up input and sends on
// presses for every debounced falling edge. A press is dropped when the
// previous one has not been taken yet.
func WatchButton(pin int, debounce time.Duration, presses chan<- struct{}) (Button, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("ratecontrol: invalid gpio pin %d", pin)
	}
	if debounce <= 0 {
		debounce = 20 * time.Millisecond
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if name := e.Name(); strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventFallingEdge {
			return
		}
		select {
		case presses <- struct{}{}:
		default:
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithBothEdges,
			gpiocdev.WithDebounce(debounce),
			gpiocdev.WithEventHandler(handler),
			gpiocdev.WithConsumer("gpsbridge-rate"),
		)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodButton{chip: chip, line: line}, nil
	}
	return nil, fmt.Errorf("ratecontrol: gpio line %q not found (or busy)", lineName)
}

type gpiodButton struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (b *gpiodButton) Close() error {
	if b == nil || b.line == nil {
		return nil
	}
	err := b.line.Close()
	b.line = nil
	if b.chip != nil {
		_ = b.chip.Close()
		b.chip = nil
	}
	return err
}
