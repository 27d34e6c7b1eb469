package model

import "time"

// Window is a range of calendar days, both ends included.
type Window struct {
	From time.Time
	To   time.Time
}

// PublishedAfter is the first instant of the window.
func (w Window) PublishedAfter() time.Time {
	return Day(w.From)
}

// PublishedBefore is the last second of the window.
func (w Window) PublishedBefore() time.Time {
	return Day(w.To).Add(24*time.Hour - time.Second)
}

func (w Window) String() string {
	return w.From.Format(time.DateOnly) + ".." + w.To.Format(time.DateOnly)
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
