package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength bounds Event.Title in characters.
const MaxTitleLength = 255

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every problem found in an event.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// Normalize trims the title and fills the default industry.
func (in EventInput) Normalize() EventInput {
	in.Title = strings.TrimSpace(in.Title)
	if in.Industry == "" {
		in.Industry = DefaultIndustry
	}
	return in
}

// Validate checks an input after Normalize.
func (in EventInput) Validate() error {
	return validateFields(in.Title, in.StartDate.IsZero(), in.EndDate.IsZero(),
		in.EndDate.Before(in.StartDate), in.Category, in.Industry, in.Country)
}

// Validate checks a stored (or patched) event.
func (e Event) Validate() error {
	return validateFields(e.Title, e.StartDate.IsZero(), e.EndDate.IsZero(),
		e.EndDate.Before(e.StartDate), e.Category, e.Industry, e.Country)
}

func validateFields(title string, noStart, noEnd, reversed bool, c Category, i Industry, country Country) error {
	var ve ValidationError
	switch {
	case strings.TrimSpace(title) == "":
		ve.add("title", "required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		ve.add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
	if noStart {
		ve.add("startDate", "required")
	}
	if noEnd {
		ve.add("endDate", "required")
	}
	if !noStart && !noEnd && reversed {
		ve.add("endDate", "must not be before startDate")
	}
	if !c.Valid() {
		ve.add("category", fmt.Sprintf("must be one of internal, external, foreign (got %q)", string(c)))
	}
	if !i.Valid() {
		ve.add("industry", fmt.Sprintf("unknown industry %q", string(i)))
	}
	if !country.Valid() {
		ve.add("country", fmt.Sprintf("unknown country %q", string(country)))
	}
	if len(ve.Fields) > 0 {
		return &ve
	}
	return nil
}
