package source

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"go.uber.org/ratelimit"

	"gpsbridge/internal/bridge"
	"gpsbridge/internal/fix"
	"gpsbridge/internal/nmea"
)

type SimConfig struct {
	CenterLatDeg float64
	CenterLonDeg float64
	RadiusNm     float64
	Period       time.Duration
	GroundKt     float64

	// Interval between sentences.
	Interval time.Duration
	// VoidEvery makes every Nth sentence a no-fix sentence. 0 disables.
	VoidEvery int
	Talker    string
}

// Sim synthesizes RMC sentences along a figure-eight track.
type Sim struct {
	cfg SimConfig
	st  *status
	now func() time.Time
	seq int
}

func NewSim(cfg SimConfig) (*Sim, error) {
	if cfg.CenterLatDeg < -89 || cfg.CenterLatDeg > 89 {
		return nil, fmt.Errorf("sim source: center latitude %v out of range", cfg.CenterLatDeg)
	}
	if cfg.CenterLonDeg < -180 || cfg.CenterLonDeg > 180 {
		return nil, fmt.Errorf("sim source: center longitude %v out of range", cfg.CenterLonDeg)
	}
	if cfg.Period <= 0 {
		cfg.Period = 120 * time.Second
	}
	if cfg.RadiusNm <= 0 {
		cfg.RadiusNm = 0.5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Talker == "" {
		cfg.Talker = "GP"
	}
	return &Sim{cfg: cfg, st: newStatus("sim", ""), now: time.Now}, nil
}

func (s *Sim) Name() string { return "sim" }

func (s *Sim) Snapshot() Snapshot { return s.st.snapshot() }

func (s *Sim) Run(ctx context.Context, p *bridge.Pipeline) error {
	log.Printf("sim source center=%.5f,%.5f radius_nm=%.2f interval=%s", s.cfg.CenterLatDeg, s.cfg.CenterLonDeg, s.cfg.RadiusNm, s.cfg.Interval)
	s.st.setState("connected", "")
	rl := ratelimit.New(1, ratelimit.Per(s.cfg.Interval))
	for {
		rl.Take()
		if ctx.Err() != nil {
			s.st.setState("stopped", "")
			return nil
		}
		b := s.Sentence(s.now())
		p.Feed(b)
		s.st.seen(len(b))
	}
}

// Position returns a deterministic figure-eight (Lissajous) track around the
// configured center.
//
//	x = cos(2πt)      east-west, scaled by cos(lat) for longitude
//	y = 0.5*sin(4πt)  north-south
func (s *Sim) Position(now time.Time) (latDeg, lonDeg, trackDeg float64) {
	radiusDeg := s.cfg.RadiusNm / 60.0
	period := s.cfg.Period
	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())

	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	latDeg = s.cfg.CenterLatDeg + radiusDeg*y
	lonDeg = s.cfg.CenterLonDeg + (radiusDeg*x)/math.Cos(s.cfg.CenterLatDeg*math.Pi/180.0)

	vx := -2 * math.Pi * math.Sin(w)
	vy := 2 * math.Pi * math.Cos(2*w)
	trackDeg = math.Mod((math.Atan2(vx, vy)*180/math.Pi)+360, 360)
	return latDeg, lonDeg, trackDeg
}

// Sentence renders one complete RMC sentence, checksum and CRLF included.
func (s *Sim) Sentence(now time.Time) []byte {
	s.seq++
	utc := now.UTC()
	hms := fmt.Sprintf("%02d%02d%02d.%03d", utc.Hour(), utc.Minute(), utc.Second(), utc.Nanosecond()/int(time.Millisecond))
	date := fmt.Sprintf("%02d%02d%02d", utc.Day(), int(utc.Month()), utc.Year()%100)

	var payload string
	if s.cfg.VoidEvery > 0 && s.seq%s.cfg.VoidEvery == 0 {
		payload = fmt.Sprintf("%sRMC,%s,V,,,,,,,%s,,,N", s.cfg.Talker, hms, date)
	} else {
		lat, lon, trk := s.Position(now)
		ns, ew := "N", "E"
		if lat < 0 {
			ns = "S"
		}
		if lon < 0 {
			ew = "W"
		}
		payload = fmt.Sprintf("%sRMC,%s,A,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
			s.cfg.Talker, hms, angle(lat, 2), ns, angle(lon, 3), ew, s.cfg.GroundKt, trk, date)
	}
	return nmea.Command(payload)
}

// angle formats |deg| as d..dmm.mmmm with degWidth degree digits.
func angle(deg float64, degWidth int) string {
	deg = math.Abs(deg)
	d := int(deg)
	const scale = fix.DecimalMinutesScale
	m := int(math.Round((deg - float64(d)) * 60 * scale))
	if m >= 60*scale {
		d++
		m -= 60 * scale
	}
	return fmt.Sprintf("%0*d%02d.%04d", degWidth, d, m/scale, m%scale)
}
