package ratecontrol

import "io"

// Button is a watched hardware input; Close releases it.
type Button interface {
	io.Closer
}
