// Package clock abstracts time for testable handlers and ingestion.
package clock

import "time"

// Clock provides the current time. Handlers take a Clock instead of
// calling time.Now so tests can pin the instant.
type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time      { return time.Now() }
func (SystemClock) NowUnixMilli() int64 { return time.Now().UnixMilli() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time      { return c.T }
func (c FixedClock) NowUnixMilli() int64 { return c.T.UnixMilli() }
