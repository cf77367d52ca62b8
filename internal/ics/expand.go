package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"evcal/internal/caldate"
	appLog "evcal/internal/log"
)

const defaultMaxOccurrencesPerEvent = 5000

// FlattenConfig bounds recurrence expansion.
type FlattenConfig struct {
	// Location decides which calendar days a timed event touches. Nil means
	// time.Local.
	Location *time.Location

	// From and To are the inclusive window of days to keep.
	From caldate.Date
	To   caldate.Date

	// MaxOccurrencesPerEvent caps runaway rules. Zero uses the default.
	MaxOccurrencesPerEvent int
}

// Occurrence is one concrete instance of a feed event, reduced to days.
type Occurrence struct {
	UID         string
	InstanceKey string
	Summary     string
	Description string
	Location    string
	Sequence    int

	// StartDate and EndDate are inclusive.
	StartDate caldate.Date
	EndDate   caldate.Date
}

// FlattenResult carries the occurrences and the UIDs that hit the cap.
type FlattenResult struct {
	Occurrences []Occurrence
	Truncated   []string
}

// Flatten expands events into concrete occurrences intersecting the window.
// It handles RRULE, EXDATE and RECURRENCE-ID overrides. Output is ordered by
// start date, then UID, then instance key.
func Flatten(events []ParsedEvent, cfg FlattenConfig) (FlattenResult, error) {
	var result FlattenResult
	if cfg.To.Before(cfg.From) {
		return result, errors.New("flatten: To is before From")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	base := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		} else {
			base[ev.UID] = append(base[ev.UID], ev)
		}
	}

	// Overrides without a series are plain one-off events.
	for uid, ovs := range overrides {
		if _, ok := base[uid]; ok {
			continue
		}
		for _, o := range ovs {
			o.Recurrence = nil
			base[uid] = append(base[uid], o)
		}
		delete(overrides, uid)
	}

	uids := make([]string, 0, len(base))
	for uid := range base {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	for _, uid := range uids {
		truncated := false
		for _, ev := range base[uid] {
			var occ []Occurrence
			var hitCap bool
			if ev.RawRRule == "" {
				occ = flattenSingle(ev, overrides[uid], cfg)
			} else {
				occ, hitCap = flattenRecurring(ev, overrides[uid], cfg)
			}
			truncated = truncated || hitCap
			result.Occurrences = append(result.Occurrences, occ...)
		}
		if truncated {
			result.Truncated = append(result.Truncated, uid)
			appLog.Warn("flatten: occurrences truncated", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		a, b := result.Occurrences[i], result.Occurrences[j]
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c < 0
		}
		if a.UID != b.UID {
			return a.UID < b.UID
		}
		return a.InstanceKey < b.InstanceKey
	})
	return result, nil
}

func flattenSingle(ev ParsedEvent, overrides []ParsedEvent, cfg FlattenConfig) []Occurrence {
	if o, ok := findOverride(overrides, ev.Start); ok {
		ev.Summary, ev.Description, ev.Location = o.Summary, o.Description, o.Location
		ev.Start, ev.End = o.Start, o.End
	}
	occ := makeOccurrence(ev, ev.Start, ev.End, cfg.Location)
	if !inWindow(occ, cfg) {
		return nil
	}
	return []Occurrence{occ}
}

func flattenRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg FlattenConfig) ([]Occurrence, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("flatten: bad RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "err", err)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the search by the event length so instances starting before the
	// window but running into it are found.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	from := cfg.From.In(loc).Add(-dur).Add(-24 * time.Hour)
	to := cfg.To.AddDays(1).In(loc).Add(24 * time.Hour)

	starts := set.Between(from, to, true)
	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		inst := ev
		start, end := s, s.Add(dur)
		if ev.AllDay {
			// Keep whole-day lengths across DST changes.
			days := caldate.FromTime(ev.Start).DaysUntil(caldate.FromTime(ev.End))
			start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			end = start.AddDate(0, 0, days)
		}
		if o, ok := findOverride(overrides, s); ok {
			inst.Summary, inst.Description, inst.Location = o.Summary, o.Description, o.Location
			start, end = o.Start, o.End
			inst.AllDay = o.AllDay
			inst.Sequence = max(inst.Sequence, o.Sequence)
		}
		occ := makeOccurrence(inst, start, end, cfg.Location)
		occ.InstanceKey = instanceKey(s, ev.AllDay)
		if inWindow(occ, cfg) {
			out = append(out, occ)
		}
	}
	return out, hitCap
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func makeOccurrence(ev ParsedEvent, start, end time.Time, loc *time.Location) Occurrence {
	first, last := dayRange(start, end, ev.AllDay, loc)
	return Occurrence{
		UID:         ev.UID,
		InstanceKey: instanceKey(start, ev.AllDay),
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Sequence:    ev.Sequence,
		StartDate:   first,
		EndDate:     last,
	}
}

// dayRange maps an iCalendar interval to inclusive calendar days. All-day
// ends are exclusive dates; timed events cover every day they touch in loc.
func dayRange(start, end time.Time, allDay bool, loc *time.Location) (caldate.Date, caldate.Date) {
	if allDay {
		first := caldate.FromTime(start)
		last := caldate.FromTime(end).AddDays(-1)
		return first, caldate.Max(first, last)
	}
	first := caldate.FromTime(start.In(loc))
	lastInstant := end
	if end.After(start) {
		lastInstant = end.Add(-time.Nanosecond)
	}
	return first, caldate.Max(first, caldate.FromTime(lastInstant.In(loc)))
}

func instanceKey(start time.Time, allDay bool) string {
	if allDay {
		return caldate.FromTime(start).String()
	}
	return start.UTC().Format("20060102T150405Z")
}

func inWindow(o Occurrence, cfg FlattenConfig) bool {
	return !o.StartDate.After(cfg.To) && !o.EndDate.Before(cfg.From)
}
