//go:build !linux || (!arm && !arm64)

package ratecontrol

import (
	"fmt"
	"time"
)

func WatchButton(pin int, debounce time.Duration, presses chan<- struct{}) (Button, error) {
	return nil, fmt.Errorf("ratecontrol: gpio button unsupported on this platform")
}
