//go:build !linux

package web

import "time"

func snapshotHost(_ time.Time) *HostSnapshot { return nil }
