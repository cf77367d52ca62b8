package layout

import (
	"slices"
	"strings"

	"evcal/internal/caldate"
	"evcal/internal/model"
)

// Options tunes a layout pass.
type Options struct {
	// ConsistentLayers keeps every segment of an event on one layer
	// instead of layering each week row independently.
	ConsistentLayers bool `json:"consistentLayers"`
}

// Result is the output of one layout pass.
type Result struct {
	Anchor   caldate.Date  `json:"anchor"`
	Days     []Day         `json:"days"`
	Visible  []model.Event `json:"events"`
	Segments []Segment     `json:"segments"`
	RowDepth []int         `json:"rowDepth"`
}

// SortForLayering orders events in place by start date, then longer events
// first, then id. This is the placement order Compute uses, which makes the
// result independent of the order events were fetched in.
func SortForLayering(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		if c := b.EndDate.Compare(a.EndDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Compute runs the full pipeline for the month of anchor.
func Compute(anchor caldate.Date, events []model.Event, filter FilterSet, opts Options) Result {
	days := VisibleDays(anchor)
	first, last := Window(days)

	visible := FilterVisible(events, first, last, filter)
	SortForLayering(visible)

	groups := make([][]Segment, 0, len(visible))
	for _, e := range visible {
		raw := ResolveSegments(e, days)
		if len(raw) == 0 {
			continue
		}
		group := make([]Segment, 0, len(raw))
		for _, r := range raw {
			group = append(group, Segment{
				EventID:         e.ID,
				Row:             r.Row,
				Col:             r.Col,
				Span:            r.Span,
				ContinuesBefore: r.ContinuesBefore,
				ContinuesAfter:  r.ContinuesAfter,
			})
		}
		groups = append(groups, group)
	}

	var segs []Segment
	if opts.ConsistentLayers {
		segs = AssignEventLayers(groups)
	} else {
		segs = AssignLayers(slices.Concat(groups...))
	}
	if segs == nil {
		segs = []Segment{}
	}

	return Result{
		Anchor:   anchor.FirstOfMonth(),
		Days:     days,
		Visible:  visible,
		Segments: segs,
		RowDepth: RowDepths(segs, Rows),
	}
}
