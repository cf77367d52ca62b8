// Package layout places calendar events on a fixed Monday-first month grid.
//
// The grid is always 6 week rows by 7 day columns. A pass runs four pure
// steps: VisibleDays builds the 42 cells for an anchor month, FilterVisible
// keeps the events that intersect the window and pass the FilterSet,
// ResolveSegments splits each event at week boundaries, and AssignLayers
// stacks segments that share columns within a row. Compute chains them.
//
// Nothing here keeps state between calls and nothing does I/O apart from
// logging events that cannot be placed.
package layout

import "evcal/internal/caldate"

const (
	Rows        = 6
	DaysPerWeek = 7
	GridDays    = Rows * DaysPerWeek
)

// Day is one cell of the month grid.
type Day struct {
	DayOfMonth     int          `json:"dayOfMonth"`
	IsCurrentMonth bool         `json:"isCurrentMonth"`
	Date           caldate.Date `json:"date"`
}

// VisibleDays returns the 42 consecutive days shown for the month of anchor,
// starting on the Monday on or before the first of the month.
func VisibleDays(anchor caldate.Date) []Day {
	first := anchor.FirstOfMonth()
	start := first.AddDays(-first.MondayIndex())

	days := make([]Day, GridDays)
	for i := range days {
		d := start.AddDays(i)
		days[i] = Day{
			DayOfMonth:     d.Day,
			IsCurrentMonth: d.Year == first.Year && d.Month == first.Month,
			Date:           d,
		}
	}
	return days
}

// Window returns the first and last visible date of days.
func Window(days []Day) (first, last caldate.Date) {
	if len(days) == 0 {
		return caldate.Date{}, caldate.Date{}
	}
	return days[0].Date, days[len(days)-1].Date
}

// indexOf returns the cell index of d, or -1.
func indexOf(days []Day, d caldate.Date) int {
	for i := range days {
		if days[i].Date == d {
			return i
		}
	}
	return -1
}
