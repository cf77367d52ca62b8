package ics

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"evcal/internal/model"
	"evcal/internal/sanitize"
)

// ProductID identifies exported calendars.
const ProductID = "-//evcal//event calendar//RU"

// Export writes events as a VCALENDAR of all-day VEVENTs. DTEND is the day
// after the last day, as iCalendar requires.
func Export(w io.Writer, name string, events []model.Event) error {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, e := range events {
		ve := cal.AddEvent(e.ID + "@evcal")
		stamp := e.UpdatedAt
		if stamp.IsZero() {
			stamp = time.Now()
		}
		ve.SetDtStampTime(stamp)
		if !e.CreatedAt.IsZero() {
			ve.SetCreatedTime(e.CreatedAt)
		}
		ve.SetAllDayStartAt(e.StartDate.Time())
		ve.SetAllDayEndAt(e.EndDate.AddDays(1).Time())
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(sanitize.PlainText(e.Description))
		}
		ve.AddProperty(ical.ComponentPropertyCategories, e.Category.Label())

		extra := []string{string(e.Industry)}
		if e.Country != "" {
			extra = append(extra, string(e.Country))
		}
		ve.SetProperty(ical.ComponentProperty("X-EVCAL-TAGS"), strings.Join(extra, ","))
	}
	return cal.SerializeTo(w)
}
