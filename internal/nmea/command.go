package nmea

import (
	"fmt"
	"strings"
)

// Checksum is the XOR of all bytes between '$' and '*'.
func Checksum(payload string) byte {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

// Command wraps a receiver command payload (e.g. "PMTK220,1000") as
// "$payload*CS\r\n". A leading '$' or trailing checksum in payload is
// stripped first.
func Command(payload string) []byte {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, "$")
	if star := strings.IndexByte(payload, '*'); star >= 0 {
		payload = payload[:star]
	}
	return []byte(fmt.Sprintf("$%s*%02X\r\n", payload, Checksum(payload)))
}
