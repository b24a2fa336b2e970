package timetable

import "fmt"

// ScheduleLevel selects which version of the timetable a read observes.
type ScheduleLevel uint8

const (
	// LevelBase is the planned schedule as imported.
	LevelBase ScheduleLevel = iota
	// LevelAdjusted is the schedule with pre-computed exceptions applied.
	LevelAdjusted
	// LevelRealtime is the schedule with live feed overrides applied.
	LevelRealtime

	// NumLevels sizes per-level arrays.
	NumLevels = 3
)

func (l ScheduleLevel) String() string {
	switch l {
	case LevelBase:
		return "base"
	case LevelAdjusted:
		return "adjusted"
	case LevelRealtime:
		return "realtime"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// ParseLevel converts the wire representation of a schedule level.
func ParseLevel(s string) (ScheduleLevel, error) {
	switch s {
	case "", "base":
		return LevelBase, nil
	case "adjusted":
		return LevelAdjusted, nil
	case "realtime":
		return LevelRealtime, nil
	default:
		return LevelBase, fmt.Errorf("unknown schedule level %q", s)
	}
}
