package timetable

import "fmt"

// DeltaKind classifies one per-stop realtime edit.
type DeltaKind uint8

const (
	// DeltaUnchanged passes the base call through untouched.
	DeltaUnchanged DeltaKind = iota
	// DeltaDelay shifts arrival and departure of an existing call.
	DeltaDelay
	// DeltaSkip keeps the slot but forbids boarding and alighting.
	DeltaSkip
	// DeltaDeleteForDetour removes the slot; the delta itself retains the
	// identity of the removed stop for diffing against base.
	DeltaDeleteForDetour
	// DeltaAdd inserts a call that has no base counterpart.
	DeltaAdd
	// DeltaAddForDetour inserts a replacement call on a detoured segment.
	DeltaAddForDetour
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaUnchanged:
		return "unchanged"
	case DeltaDelay:
		return "delay"
	case DeltaSkip:
		return "skip"
	case DeltaDeleteForDetour:
		return "delete-for-detour"
	case DeltaAdd:
		return "add"
	case DeltaAddForDetour:
		return "add-for-detour"
	default:
		return fmt.Sprintf("delta(%d)", uint8(k))
	}
}

// consumesSlot reports whether the delta is matched against an existing
// call of the sequence being edited (as opposed to inserting a new one).
func (k DeltaKind) consumesSlot() bool {
	return k != DeltaAdd && k != DeltaAddForDetour
}

// StopDelta is one entry of a trip update's ordered stop list.
type StopDelta struct {
	Kind      DeltaKind
	StopPoint int
	// Delay kinds: seconds added to the underlying times.
	ArrivalDelay   int32
	DepartureDelay int32
	// Add kinds: absolute seconds since service-day midnight.
	Arrival   int32
	Departure int32
}

// ApplyDeltas applies an ordered delta list to a stop-time sequence and
// returns the edited copy. The input sequence is never modified. Deltas are
// consumed positionally: each non-inserting delta edits the next slot of
// the input, inserting kinds splice new calls in at the current position.
func ApplyDeltas(seq []StopTime, deltas []StopDelta) ([]StopTime, error) {
	out := make([]StopTime, 0, len(deltas))
	pos := 0

	for i, d := range deltas {
		if d.Kind.consumesSlot() {
			// Calls inserted by an earlier layer are unknown to this delta
			// list; pass them through untouched.
			for pos < len(seq) && seq[pos].BaseIndex == InsertedStop && seq[pos].StopPoint != d.StopPoint {
				out = append(out, seq[pos])
				pos++
			}
			if pos >= len(seq) {
				return nil, fmt.Errorf("delta %d (%s) has no matching stop slot", i, d.Kind)
			}
			slot := seq[pos]
			if slot.StopPoint != d.StopPoint {
				return nil, fmt.Errorf("delta %d targets stop %d but slot %d holds stop %d",
					i, d.StopPoint, pos, slot.StopPoint)
			}
			pos++

			switch d.Kind {
			case DeltaUnchanged:
				out = append(out, slot)
			case DeltaDelay:
				slot.Arrival += d.ArrivalDelay
				slot.Departure += d.DepartureDelay
				out = append(out, slot)
			case DeltaSkip:
				slot.PickupAllowed = false
				slot.DropOffAllowed = false
				slot.Skipped = true
				out = append(out, slot)
			case DeltaDeleteForDetour:
				// Slot dropped; identity preserved by the delta record.
			}
			continue
		}

		out = append(out, StopTime{
			StopPoint:      d.StopPoint,
			Arrival:        d.Arrival,
			Departure:      d.Departure,
			PickupAllowed:  true,
			DropOffAllowed: true,
			BaseIndex:      InsertedStop,
		})
	}

	for pos < len(seq) && seq[pos].BaseIndex == InsertedStop {
		out = append(out, seq[pos])
		pos++
	}
	if pos != len(seq) {
		return nil, fmt.Errorf("delta list covers %d of %d stop slots", pos, len(seq))
	}
	return out, nil
}

// ComposeDeltas re-derives a sequence from base by applying every delta
// list in order. This is the only supported way to combine edits from
// several independent feeds: deleting one feed's update and re-composing
// the remainder can never corrupt another feed's edits.
func ComposeDeltas(base []StopTime, layers ...[]StopDelta) ([]StopTime, error) {
	seq := base
	for i, layer := range layers {
		var err error
		seq, err = ApplyDeltas(seq, layer)
		if err != nil {
			return nil, fmt.Errorf("composing layer %d: %w", i, err)
		}
	}
	// Always hand back an owned copy, even with zero layers.
	if len(layers) == 0 {
		out := make([]StopTime, len(base))
		copy(out, base)
		return out, nil
	}
	return seq, nil
}
