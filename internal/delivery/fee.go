package delivery

import (
	"math"
	"strings"
	"time"
)

// surgeWindow is a daily time range in minutes since midnight. End may be
// smaller than start for windows that wrap midnight.
type surgeWindow struct {
	start int
	end   int
}

func parseSurgeWindows(entries []string) []surgeWindow {
	windows := make([]surgeWindow, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, "-", 2)
		if len(parts) != 2 {
			continue
		}
		start, okS := parseClock(parts[0])
		end, okE := parseClock(parts[1])
		if !okS || !okE {
			continue
		}
		windows = append(windows, surgeWindow{start: start, end: end})
	}
	return windows
}

func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func (w surgeWindow) contains(minute int) bool {
	if w.start <= w.end {
		return minute >= w.start && minute < w.end
	}
	return minute >= w.start || minute < w.end
}

// Fee prices a delivery: base fee plus the chargeable distance at the per-km
// rate, surged when the time falls in a configured window, clamped to the
// configured bounds.
func (c *Calculator) Fee(distanceKm float64, at time.Time) float64 {
	perKm := c.cfg.PerKmFee
	if c.inSurge(at) {
		perKm *= c.cfg.SurgeMultiplier
	}

	chargeable := math.Max(0, distanceKm-c.cfg.FreeDistanceKm)
	fee := c.cfg.BaseFee + chargeable*perKm

	if fee < c.cfg.MinFee {
		fee = c.cfg.MinFee
	}
	if c.cfg.MaxFee > 0 && fee > c.cfg.MaxFee {
		fee = c.cfg.MaxFee
	}
	return math.Round(fee*100) / 100
}

func (c *Calculator) inSurge(at time.Time) bool {
	minute := at.Hour()*60 + at.Minute()
	for _, w := range c.windows {
		if w.contains(minute) {
			return true
		}
	}
	return false
}
