package model

import (
	"time"

	"evcal/internal/caldate"
)

// Event is a dated or ranged calendar entry. StartDate <= EndDate always
// holds for events that went through Validate.
type Event struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	StartDate   caldate.Date `json:"startDate"`
	EndDate     caldate.Date `json:"endDate"`
	Category    Category     `json:"category"`
	Industry    Industry     `json:"industry"`
	Country     Country      `json:"country,omitempty"`

	// CreatedBy is a user id, or "ics:<source>" for imported events.
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Days returns the inclusive length of the event in calendar days.
func (e Event) Days() int {
	return e.StartDate.DaysUntil(e.EndDate) + 1
}

// Overlaps reports whether the event intersects [from, to].
func (e Event) Overlaps(from, to caldate.Date) bool {
	return !e.StartDate.After(to) && !e.EndDate.Before(from)
}

// EventInput is the payload for creating an event.
type EventInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	StartDate   caldate.Date `json:"startDate"`
	EndDate     caldate.Date `json:"endDate"`
	Category    Category     `json:"category"`
	Industry    Industry     `json:"industry,omitempty"`
	Country     Country      `json:"country,omitempty"`
}

// EventPatch is a partial update; nil fields are left untouched.
type EventPatch struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	StartDate   *caldate.Date `json:"startDate,omitempty"`
	EndDate     *caldate.Date `json:"endDate,omitempty"`
	Category    *Category     `json:"category,omitempty"`
	Industry    *Industry     `json:"industry,omitempty"`
	Country     *Country      `json:"country,omitempty"`
}

// Apply returns a copy of e with the patch applied. It does not validate.
func (p EventPatch) Apply(e Event) Event {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.StartDate != nil {
		e.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		e.EndDate = *p.EndDate
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Industry != nil {
		e.Industry = *p.Industry
	}
	if p.Country != nil {
		e.Country = *p.Country
	}
	return e
}

// User is an account allowed to log in.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Action names a tracked user interaction.
type Action string

const (
	ActionLogin       Action = "login"
	ActionLogout      Action = "logout"
	ActionViewEvent   Action = "view_event"
	ActionCreateEvent Action = "create_event"
	ActionUpdateEvent Action = "update_event"
	ActionDeleteEvent Action = "delete_event"
)

// Analytic is one recorded user interaction.
type Analytic struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	EventID   string            `json:"eventId,omitempty"`
	Action    Action            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
