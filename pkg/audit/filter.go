package audit

import (
	"sort"
	"time"
)

// Filter selects audit events. Zero fields match everything.
type Filter struct {
	Resource    string
	Reservation string
	User        string
	Command     string

	// Since and Until bound the event timestamp, both inclusive.
	Since time.Time
	Until time.Time

	// Failed keeps only failed commands.
	Failed bool
	// Locked keeps only commands that ran under the resource lock.
	Locked bool

	// Limit caps the result to the newest Limit events.
	Limit int
}

// Match reports whether e satisfies the filter.
func (f Filter) Match(e *Event) bool {
	switch {
	case f.Resource != "" && e.Resource != f.Resource:
		return false
	case f.Reservation != "" && e.Reservation != f.Reservation:
		return false
	case f.User != "" && e.User != f.User:
		return false
	case f.Command != "" && e.Command != f.Command:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && e.Timestamp.After(f.Until):
		return false
	case f.Failed && e.Success:
		return false
	case f.Locked && !e.Locked:
		return false
	}
	return true
}

// newest orders events newest first and applies the limit.
func (f Filter) newest(events []*Event) []*Event {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if f.Limit > 0 && len(events) > f.Limit {
		events = events[:f.Limit]
	}
	return events
}
