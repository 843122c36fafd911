package shared

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time so services stay deterministic in tests
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock
type SystemClock struct{}

// Now returns the current time in UTC
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator abstracts identifier generation
type IDGenerator interface {
	NewID() uuid.UUID
}

// UUIDGenerator generates random v4 UUIDs
type UUIDGenerator struct{}

// NewID returns a new random UUID
func (UUIDGenerator) NewID() uuid.UUID {
	return uuid.New()
}
