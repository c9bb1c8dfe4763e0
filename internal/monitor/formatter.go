package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatRate renders a per-minute rate.
func FormatRate(perMinute float64) string {
	return fmt.Sprintf("%.1f/min", perMinute)
}

// FormatLatency renders a latency given in seconds, in ms below one second.
func FormatLatency(seconds float64) string {
	if seconds >= 1 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%.1fms", seconds*1000)
}

// FormatPercentage renders a 0..1 ratio.
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatCount renders a cumulative counter with thousands separators.
func FormatCount(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}

// FormatMemory renders a byte count in IEC units.
func FormatMemory(bytes uint64) string {
	return humanize.IBytes(bytes)
}

// FormatUptime renders d as "2h 15m", or minutes alone under an hour.
func FormatUptime(d time.Duration) string {
	d = d.Truncate(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
