package models

import "time"

// TimeWindow is a half-open [Start, End) interval on the UTC timeline.
// Windows are only constructed from validated input, so Start < End always
// holds once a window exists.
type TimeWindow struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// NewTimeWindow normalises both bounds to UTC.
func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{StartAt: start.UTC(), EndAt: end.UTC()}
}

// Valid reports whether the window has positive duration.
func (w TimeWindow) Valid() bool {
	return w.EndAt.After(w.StartAt)
}

// Overlaps reports whether two half-open windows intersect. Touching
// boundaries (one ends exactly when the other starts) do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return other.StartAt.Before(w.EndAt) && w.StartAt.Before(other.EndAt)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.EndAt.Sub(w.StartAt)
}
