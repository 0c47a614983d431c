// Package state derives compact, color-coded status summaries from
// indicators, fundamentals, and news coverage. Everything here is a pure
// function over already-fetched data; missing inputs degrade to gray
// "unknown" entries instead of errors.
package state

import (
	"time"

	"github.com/ashita-ai/ichiba/internal/indicator"
	"github.com/ashita-ai/ichiba/internal/model"
)

// Statuses are matched case-insensitively by UI consumers; keep the casing
// the agent prompt examples use.
const statusUnknown = "unknown"

func unknownEntry(detail string) model.StatusEntry {
	return model.StatusEntry{Status: statusUnknown, Color: model.ColorGray, Detail: detail}
}

// Event markers older than this many points no longer color the current
// status.
const recentWindow = 3

// recentCutoff returns the timestamp a marker must reach to count as recent
// relative to the series.
func recentCutoff(points []indicator.Point) time.Time {
	if len(points) == 0 {
		return time.Time{}
	}
	idx := len(points) - recentWindow
	if idx < 0 {
		idx = 0
	}
	return points[idx].Timestamp
}

func isRecent(m indicator.Marker, cutoff time.Time) bool {
	return !m.Timestamp.Before(cutoff)
}
