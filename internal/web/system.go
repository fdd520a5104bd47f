package web

// HostSnapshot tells a bus master where the TCP bus front can be reached.
type HostSnapshot struct {
	LocalAddrs []string `json:"local_addrs,omitempty"`
	UptimeSec  int64    `json:"uptime_sec,omitempty"`
}
