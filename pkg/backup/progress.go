package backup

import (
	"regexp"
	"strconv"
)

// pctRegexp matches the percentage in the output of 'rsync --info=progress2'.
var pctRegexp = regexp.MustCompile(`(\d+)%`)

// progressWriter parses rsync progress output and publishes the completed
// fraction. rsync separates progress updates with carriage returns, so the
// writer scans each chunk on its own instead of splitting lines.
type progressWriter struct {
	publish func(frac float64)
	lastPct int
}

func newProgressWriter(publish func(frac float64)) *progressWriter {
	return &progressWriter{publish: publish, lastPct: -1}
}

// Write implements io.Writer. It never fails, a chunk without a percentage
// is simply skipped.
func (w *progressWriter) Write(p []byte) (int, error) {
	matches := pctRegexp.FindAllSubmatch(p, -1)
	if len(matches) == 0 {
		return len(p), nil
	}

	pct, err := strconv.Atoi(string(matches[len(matches)-1][1]))
	if err != nil || pct == w.lastPct {
		return len(p), nil
	}

	w.lastPct = pct
	frac := float64(pct) / 100
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	w.publish(frac)

	return len(p), nil
}
