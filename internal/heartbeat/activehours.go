package heartbeat

import (
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// withinActiveHours reports whether now falls inside the [start, end)
// window, in the configured (or local) timezone. A malformed window is
// treated as "always active" rather than blocking the heartbeat outright.
func withinActiveHours(cfg config.ActiveHoursConfig, now time.Time) bool {
	loc := time.Local
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		}
	}
	now = now.In(loc)

	startMin, ok1 := parseHHMM(cfg.Start)
	endMin, ok2 := parseHHMM(cfg.End)
	if !ok1 || !ok2 {
		return true
	}

	nowMin := now.Hour()*60 + now.Minute()
	if startMin <= endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// Window wraps midnight (e.g. 22:00–06:00).
	return nowMin >= startMin || nowMin < endMin
}

func parseHHMM(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
