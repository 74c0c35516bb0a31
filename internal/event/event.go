// Package event defines the telemetry event record shared by the buffer,
// the sinks and the ingest pipeline.
package event

import (
	"strings"
	"time"
)

// Kind classifies an event for the downstream backends.
type Kind string

const (
	// KindDesign is a regular gameplay event (kills, deaths, level ups).
	KindDesign Kind = "design"
	// KindBusiness is a monetization event produced by the marketplace listener.
	KindBusiness Kind = "business"
)

// Event is a single telemetry event bound to a session.
type Event struct {
	ID     string
	Kind   Kind
	Name   string
	Value  float64
	Fields []string // optional hierarchy segments, order preserved
	At     time.Time
}

// FullName returns the event name with its segment fields appended,
// colon-joined, matching the backends' hierarchical event id format.
func (e Event) FullName() string {
	if len(e.Fields) == 0 {
		return e.Name
	}
	return e.Name + ":" + strings.Join(e.Fields, ":")
}
