// Copyright (c) 2025 BVK Chaitanya

// Package timerange represents half-open [Begin, End) time windows used by
// the pay summaries. A zero Range means "lifetime".
package timerange

import "time"

type Range struct {
	Begin, End time.Time
}

func (r *Range) IsZero() bool {
	return r.Begin.IsZero() && r.End.IsZero()
}

func (r *Range) Equal(v *Range) bool {
	return r.Begin.Equal(v.Begin) && r.End.Equal(v.End)
}

// InRange returns true if v falls within the window. Zero ranges contain
// every instant.
func (r *Range) InRange(v time.Time) bool {
	if r.IsZero() {
		return true
	}
	if !r.Begin.IsZero() && v.Before(r.Begin) {
		return false
	}
	if !r.End.IsZero() && (v.Equal(r.End) || v.After(r.End)) {
		return false
	}
	return true
}

// Day returns the calendar-day window containing v in the given location.
func Day(v time.Time, loc *time.Location) *Range {
	v = v.In(loc)
	begin := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, loc)
	return &Range{Begin: begin, End: begin.AddDate(0, 0, 1)}
}

func Today(loc *time.Location) *Range {
	return Day(time.Now(), loc)
}

// Lifetime returns the unbounded window.
func Lifetime() *Range {
	return &Range{}
}
