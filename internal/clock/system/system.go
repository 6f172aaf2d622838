// Package system supplies the wall clock that stamps ingest runs and tracking memberships.
package system

import "time"

// Clock implements ram.Clock. Times are UTC so stored observations and chart labels agree
// across hosts.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
