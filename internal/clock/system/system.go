// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

var _ catalog.Clock = Clock{}

// Clock implements catalog.Clock using time.Now in UTC. Run rows, progress
// events and completion notices are written by different hosts and read by
// operators in other zones, so every stamp the exporter records is UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
