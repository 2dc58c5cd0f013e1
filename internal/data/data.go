// Package data provides the Postgres implementations of the planner
// service's repository interfaces.
package data

import (
	"errors"
	"time"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrTerminalRace is returned when a side-effect write loses the race to
	// finalize a job: another writer reached a terminal state first and the
	// whole transaction was rolled back.
	ErrTerminalRace = errors.New("job already finalized by another writer")
	// ErrItineraryNotFound is returned when an itinerary is not found.
	ErrItineraryNotFound = errors.New("itinerary not found")
	// ErrRecommendationNotFound is returned when a recommendation set is not found.
	ErrRecommendationNotFound = errors.New("recommendation set not found")
)

// TimeProvider abstracts time.Now for deterministic tests.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider returns the actual current time.
type RealTimeProvider struct{}

// Now implements TimeProvider.
func (RealTimeProvider) Now() time.Time { return time.Now() }
