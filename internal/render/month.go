package render

import (
	"fmt"

	"evcal/internal/caldate"
	"evcal/internal/layout"
	"evcal/internal/model"
)

var weekdayNames = [layout.DaysPerWeek]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

var monthNames = [12]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// MonthTitle returns e.g. "Март 2025".
func MonthTitle(d caldate.Date) string {
	return fmt.Sprintf("%s %d", monthNames[d.Month-1], d.Year)
}

// Cell is one day square of the page.
type Cell struct {
	Date           string
	DayOfMonth     int
	IsCurrentMonth bool
	IsToday        bool
	IsWeekend      bool
}

// Bar is one event segment ready to draw.
type Bar struct {
	EventID         string
	Title           string
	Class           string
	Style           string
	ContinuesBefore bool
	ContinuesAfter  bool
}

// Week is one row of the page.
type Week struct {
	Cells    []Cell
	Bars     []Bar
	HeightPx int
}

// LegendItem explains one category colour.
type LegendItem struct {
	Class string
	Label string
}

// Month is the view model of the month page.
type Month struct {
	Title        string
	Year         int
	Month        int
	PrevYear     int
	PrevMonth    int
	NextYear     int
	NextMonth    int
	Weekdays     []string
	GridTemplate string
	Weeks        []Week
	Legend       []LegendItem
	EventCount   int
}

// BuildMonth projects a layout result onto page coordinates.
func BuildMonth(res layout.Result, g Geometry, today caldate.Date) Month {
	byID := make(map[string]model.Event, len(res.Visible))
	for _, e := range res.Visible {
		byID[e.ID] = e
	}

	prev, next := res.Anchor.AddMonths(-1), res.Anchor.AddMonths(1)
	m := Month{
		Title:        MonthTitle(res.Anchor),
		Year:         res.Anchor.Year,
		Month:        int(res.Anchor.Month),
		PrevYear:     prev.Year,
		PrevMonth:    int(prev.Month),
		NextYear:     next.Year,
		NextMonth:    int(next.Month),
		Weekdays:     weekdayNames[:],
		GridTemplate: g.GridTemplate(),
		EventCount:   len(res.Visible),
	}
	for _, c := range model.Categories {
		m.Legend = append(m.Legend, LegendItem{Class: c.Style(), Label: c.Label()})
	}

	rows := len(res.Days) / layout.DaysPerWeek
	m.Weeks = make([]Week, rows)
	for i, d := range res.Days {
		w := &m.Weeks[i/layout.DaysPerWeek]
		w.Cells = append(w.Cells, Cell{
			Date:           d.Date.String(),
			DayOfMonth:     d.DayOfMonth,
			IsCurrentMonth: d.IsCurrentMonth,
			IsToday:        d.Date == today,
			IsWeekend:      i%layout.DaysPerWeek >= 5,
		})
	}

	for _, s := range res.Segments {
		if s.Row < 0 || s.Row >= rows {
			continue
		}
		e, ok := byID[s.EventID]
		if !ok {
			continue
		}
		m.Weeks[s.Row].Bars = append(m.Weeks[s.Row].Bars, Bar{
			EventID:         e.ID,
			Title:           e.Title,
			Class:           e.Category.Style(),
			Style:           g.Place(s).Style(),
			ContinuesBefore: s.ContinuesBefore,
			ContinuesAfter:  s.ContinuesAfter,
		})
	}

	for r := range m.Weeks {
		depth := 0
		if r < len(res.RowDepth) {
			depth = res.RowDepth[r]
		}
		m.Weeks[r].HeightPx = g.RowHeight(depth)
	}
	return m
}
