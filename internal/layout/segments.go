package layout

import (
	"evcal/internal/caldate"
	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// RawSegment is the part of one event inside one week row, before layering.
type RawSegment struct {
	Row  int
	Col  int
	Span int

	// ContinuesBefore is set when the event has days before this segment,
	// either in the previous row or outside the visible window.
	ContinuesBefore bool
	// ContinuesAfter is the same for days after the segment.
	ContinuesAfter bool
}

// ResolveSegments splits the visible part of e into one segment per week row
// it touches, in row order. It returns nil when e is not visible in days.
//
// A clipped start that cannot be found in days means the window is not a
// contiguous run of dates; the event is logged and skipped.
func ResolveSegments(e model.Event, days []Day) []RawSegment {
	first, last := Window(days)
	if len(days) == 0 || !e.Overlaps(first, last) {
		return nil
	}

	start := caldate.Max(e.StartDate, first)
	end := caldate.Min(e.EndDate, last)

	idx := indexOf(days, start)
	if idx < 0 {
		appLog.Warn("layout: clipped start not in visible window; skipping event",
			"event_id", e.ID,
			"start", start.String(),
			"window_start", first.String(),
			"window_end", last.String(),
		)
		return nil
	}

	rows := (len(days) + DaysPerWeek - 1) / DaysPerWeek
	row, col := idx/DaysPerWeek, idx%DaysPerWeek
	remaining := start.DaysUntil(end) + 1
	clippedBefore := start.After(e.StartDate)
	clippedAfter := end.Before(e.EndDate)

	var out []RawSegment
	for remaining > 0 && row < rows {
		span := min(remaining, DaysPerWeek-col)
		remaining -= span
		out = append(out, RawSegment{
			Row:             row,
			Col:             col,
			Span:            span,
			ContinuesBefore: len(out) > 0 || clippedBefore,
			ContinuesAfter:  remaining > 0 || clippedAfter,
		})
		row++
		col = 0
	}
	return out
}
