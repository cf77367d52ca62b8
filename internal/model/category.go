package model

import "fmt"

// Category is the closed set of event kinds.
type Category string

const (
	CategoryInternal Category = "internal"
	CategoryExternal Category = "external"
	CategoryForeign  Category = "foreign"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryInternal, CategoryExternal, CategoryForeign}

// ParseCategory returns the category named s.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryInternal, CategoryExternal, CategoryForeign:
		return true
	}
	return false
}

// Label is the human-readable name shown in the UI.
// It panics on an unknown category; callers validate at the boundary.
func (c Category) Label() string {
	switch c {
	case CategoryInternal:
		return "Внутренняя активность"
	case CategoryExternal:
		return "Внешняя активность"
	case CategoryForeign:
		return "Зарубежная активность"
	}
	panic(fmt.Sprintf("model: unknown category %q", string(c)))
}

// Style is the CSS class suffix used for event bars of this category.
func (c Category) Style() string {
	switch c {
	case CategoryInternal:
		return "cat-internal"
	case CategoryExternal:
		return "cat-external"
	case CategoryForeign:
		return "cat-foreign"
	}
	panic(fmt.Sprintf("model: unknown category %q", string(c)))
}

// Industry is the closed set of industries an event can belong to.
type Industry string

const (
	IndustryCross    Industry = "межотраслевое"
	IndustryPharma   Industry = "фарма"
	IndustryAgro     Industry = "агро"
	IndustryIT       Industry = "IT"
	IndustryIndustry Industry = "промышленность"
	IndustryRetail   Industry = "ретейл"
)

// DefaultIndustry is used when an event does not name one.
const DefaultIndustry = IndustryCross

var Industries = []Industry{IndustryCross, IndustryPharma, IndustryAgro, IndustryIT, IndustryIndustry, IndustryRetail}

func (i Industry) Valid() bool {
	for _, known := range Industries {
		if i == known {
			return true
		}
	}
	return false
}

// Country is the closed set of countries for foreign events.
type Country string

const (
	CountryUSA     Country = "США"
	CountryUK      Country = "Великобритания"
	CountryEU      Country = "Евросоюз"
	CountryGermany Country = "Германия"
	CountryJapan   Country = "Япония"
	CountryIndia   Country = "Индия"
	CountryBrazil  Country = "Бразилия"
	CountryChina   Country = "Китай"
)

var Countries = []Country{CountryUSA, CountryUK, CountryEU, CountryGermany, CountryJapan, CountryIndia, CountryBrazil, CountryChina}

// Valid reports whether c is a known country. The empty country is valid
// and means "not set".
func (c Country) Valid() bool {
	if c == "" {
		return true
	}
	for _, known := range Countries {
		if c == known {
			return true
		}
	}
	return false
}
