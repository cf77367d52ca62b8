package layout

import (
	"evcal/internal/caldate"
	"evcal/internal/model"
)

// FilterSet selects which events are shown. Category flags are explicit;
// industry and country flags only need entries for hidden values, a
// missing key counts as shown.
type FilterSet struct {
	Internal bool `json:"internal"`
	External bool `json:"external"`
	Foreign  bool `json:"foreign"`

	Industries map[model.Industry]bool `json:"industries,omitempty"`
	Countries  map[model.Country]bool  `json:"countries,omitempty"`
}

// AllVisible is the default FilterSet.
func AllVisible() FilterSet {
	return FilterSet{Internal: true, External: true, Foreign: true}
}

// Category reports whether events of category c are shown.
func (f FilterSet) Category(c model.Category) bool {
	switch c {
	case model.CategoryInternal:
		return f.Internal
	case model.CategoryExternal:
		return f.External
	case model.CategoryForeign:
		return f.Foreign
	}
	return false
}

// SetCategory returns f with the flag for c set to on.
func (f FilterSet) SetCategory(c model.Category, on bool) FilterSet {
	switch c {
	case model.CategoryInternal:
		f.Internal = on
	case model.CategoryExternal:
		f.External = on
	case model.CategoryForeign:
		f.Foreign = on
	}
	return f
}

// Allows reports whether e passes every flag in f.
func (f FilterSet) Allows(e model.Event) bool {
	if !f.Category(e.Category) {
		return false
	}
	if on, ok := f.Industries[e.Industry]; ok && !on {
		return false
	}
	if e.Country != "" {
		if on, ok := f.Countries[e.Country]; ok && !on {
			return false
		}
	}
	return true
}

// FilterVisible returns the events that intersect [first, last] and pass f,
// in input order.
func FilterVisible(events []model.Event, first, last caldate.Date, f FilterSet) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if !e.Overlaps(first, last) {
			continue
		}
		if !f.Allows(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}
