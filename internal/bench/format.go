package bench

import (
	"fmt"
	"strings"
	"time"
)

// FormatNumber formats an integer with comma separators
func FormatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	var result strings.Builder
	result.WriteString(sign)
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

// FormatLatency formats a duration in the most appropriate unit
func FormatLatency(d time.Duration) string {
	if d == 0 {
		return "0"
	}

	ns := d.Nanoseconds()

	if ns < 1000 {
		return fmt.Sprintf("%dns", ns)
	}

	if ns < 1_000_000 {
		us := float64(ns) / 1000.0
		if us == float64(int(us)) {
			return fmt.Sprintf("%dµs", int(us))
		}
		return fmt.Sprintf("%.1fµs", us)
	}

	if ns < 1_000_000_000 {
		ms := float64(ns) / 1_000_000.0
		if ms == float64(int(ms)) {
			return fmt.Sprintf("%dms", int(ms))
		}
		return fmt.Sprintf("%.2fms", ms)
	}

	s := float64(ns) / 1_000_000_000.0
	return fmt.Sprintf("%.2fs", s)
}

// vsFastest formats how much slower a runner was than the fastest one.
func vsFastest(totalTime, fastestTime time.Duration, rank int) string {
	if rank == 1 {
		return "baseline"
	}
	if fastestTime <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fx", float64(totalTime)/float64(fastestTime))
}

func rankIcon(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d", rank)
	}
}
