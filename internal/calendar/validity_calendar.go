// Package calendar implements the per-day activity bitset used to track
// which service days a trip variant runs on. Every calendar in a dataset is
// anchored to the same epoch date so that day offsets are comparable across
// the whole timetable.
package calendar

import (
	"fmt"
	"math/bits"
	"time"
)

// MaxDays is the fixed capacity of a ValidityCalendar. A production dataset
// covers at most one leap year of service days.
const MaxDays = 366

const wordCount = (MaxDays + 63) / 64

// ValidityCalendar is a fixed-capacity day bitset anchored to an epoch date.
// The zero value is unusable; construct with New.
type ValidityCalendar struct {
	epoch time.Time
	bits  [wordCount]uint64
}

// New returns an empty calendar anchored to the given epoch. The epoch is
// normalized to midnight UTC.
func New(epoch time.Time) *ValidityCalendar {
	return &ValidityCalendar{epoch: Midnight(epoch)}
}

// Midnight truncates t to midnight UTC of its calendar date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Epoch returns the anchor date of the calendar.
func (c *ValidityCalendar) Epoch() time.Time {
	return c.epoch
}

// DayOffset converts a date into an offset relative to the epoch. An error
// is returned when the date falls outside the calendar's capacity; callers
// must not silently wrap large realtime shifts into a valid day.
func (c *ValidityCalendar) DayOffset(date time.Time) (int, error) {
	off := int(Midnight(date).Sub(c.epoch).Hours() / 24)
	if off < 0 || off >= MaxDays {
		return 0, fmt.Errorf("date %s is outside the calendar range starting %s",
			date.Format("2006-01-02"), c.epoch.Format("2006-01-02"))
	}
	return off, nil
}

// SetActive marks the given date as active.
func (c *ValidityCalendar) SetActive(date time.Time) error {
	off, err := c.DayOffset(date)
	if err != nil {
		return err
	}
	return c.SetActiveDay(off)
}

// SetInactive clears the given date.
func (c *ValidityCalendar) SetInactive(date time.Time) error {
	off, err := c.DayOffset(date)
	if err != nil {
		return err
	}
	return c.SetInactiveDay(off)
}

// SetActiveDay marks a day offset as active.
func (c *ValidityCalendar) SetActiveDay(day int) error {
	if day < 0 || day >= MaxDays {
		return fmt.Errorf("day offset %d out of range [0, %d)", day, MaxDays)
	}
	c.bits[day/64] |= 1 << uint(day%64)
	return nil
}

// SetInactiveDay clears a day offset.
func (c *ValidityCalendar) SetInactiveDay(day int) error {
	if day < 0 || day >= MaxDays {
		return fmt.Errorf("day offset %d out of range [0, %d)", day, MaxDays)
	}
	c.bits[day/64] &^= 1 << uint(day%64)
	return nil
}

// Check reports whether the day offset is active. Out-of-range offsets are
// never active.
func (c *ValidityCalendar) Check(day int) bool {
	if day < 0 || day >= MaxDays {
		return false
	}
	return c.bits[day/64]&(1<<uint(day%64)) != 0
}

// CheckDate reports whether the given date is active.
func (c *ValidityCalendar) CheckDate(date time.Time) bool {
	off, err := c.DayOffset(date)
	if err != nil {
		return false
	}
	return c.Check(off)
}

// Difference returns a new calendar with the days of c that are not active
// in other. Both calendars must share the same epoch.
func (c *ValidityCalendar) Difference(other *ValidityCalendar) (*ValidityCalendar, error) {
	if !c.epoch.Equal(other.epoch) {
		return nil, fmt.Errorf("calendar epochs differ: %s vs %s",
			c.epoch.Format("2006-01-02"), other.epoch.Format("2006-01-02"))
	}
	out := New(c.epoch)
	for i := range c.bits {
		out.bits[i] = c.bits[i] &^ other.bits[i]
	}
	return out, nil
}

// Union returns a new calendar with the days active in either calendar.
func (c *ValidityCalendar) Union(other *ValidityCalendar) (*ValidityCalendar, error) {
	if !c.epoch.Equal(other.epoch) {
		return nil, fmt.Errorf("calendar epochs differ: %s vs %s",
			c.epoch.Format("2006-01-02"), other.epoch.Format("2006-01-02"))
	}
	out := New(c.epoch)
	for i := range c.bits {
		out.bits[i] = c.bits[i] | other.bits[i]
	}
	return out, nil
}

// Clone returns an independent copy.
func (c *ValidityCalendar) Clone() *ValidityCalendar {
	out := *c
	return &out
}

// CopyFrom overwrites c's bits with other's. Epochs must match.
func (c *ValidityCalendar) CopyFrom(other *ValidityCalendar) error {
	if !c.epoch.Equal(other.epoch) {
		return fmt.Errorf("calendar epochs differ: %s vs %s",
			c.epoch.Format("2006-01-02"), other.epoch.Format("2006-01-02"))
	}
	c.bits = other.bits
	return nil
}

// Clear deactivates every day.
func (c *ValidityCalendar) Clear() {
	c.bits = [wordCount]uint64{}
}

// Empty reports whether no day is active.
func (c *ValidityCalendar) Empty() bool {
	for _, w := range c.bits {
		if w != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both calendars share the epoch and the exact same
// set of active days.
func (c *ValidityCalendar) Equal(other *ValidityCalendar) bool {
	return c.epoch.Equal(other.epoch) && c.bits == other.bits
}

// ActiveDays returns the active day offsets in ascending order.
func (c *ValidityCalendar) ActiveDays() []int {
	var days []int
	for i, w := range c.bits {
		for w != 0 {
			days = append(days, i*64+bits.TrailingZeros64(w))
			w &= w - 1
		}
	}
	return days
}

// Words exposes the raw bitset for serialization. The returned slice is a
// copy.
func (c *ValidityCalendar) Words() []uint64 {
	out := make([]uint64, wordCount)
	copy(out, c.bits[:])
	return out
}

// SetWords overwrites the raw bitset from a serialized form.
func (c *ValidityCalendar) SetWords(words []uint64) error {
	if len(words) != wordCount {
		return fmt.Errorf("expected %d calendar words, got %d", wordCount, len(words))
	}
	copy(c.bits[:], words)
	return nil
}
