// Package store persists events and analytics.
//
// Two backends implement Store: an in-memory one for development and tests,
// and a SQL one built on GORM. Both keep the same ordering and error
// contract, so handlers never need to know which one is configured.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"evcal/internal/caldate"
	"evcal/internal/model"
)

// ErrNotFound is returned when the requested event does not exist.
var ErrNotFound = errors.New("event not found")

// timeNow is a variable for testability.
var timeNow = time.Now

// MonthSource lists the events that intersect one calendar month.
type MonthSource interface {
	ListByMonth(ctx context.Context, year int, month time.Month) ([]model.Event, error)
}

// Store is the persistence contract used by the web layer.
type Store interface {
	MonthSource

	// List returns every event ordered by start date, end date, id.
	List(ctx context.Context) ([]model.Event, error)
	// ListRange returns events intersecting [from, to], same order as List.
	ListRange(ctx context.Context, from, to caldate.Date) ([]model.Event, error)
	Get(ctx context.Context, id string) (model.Event, error)
	Create(ctx context.Context, in model.EventInput, createdBy string) (model.Event, error)
	Update(ctx context.Context, id string, patch model.EventPatch) (model.Event, error)
	Delete(ctx context.Context, id string) error

	// ReplaceSource atomically replaces every event created by owner with
	// events. Used by feed imports.
	ReplaceSource(ctx context.Context, owner string, events []model.Event) error

	RecordAnalytic(ctx context.Context, a model.Analytic) error
	// ListAnalytics returns the newest entries first, at most limit.
	ListAnalytics(ctx context.Context, limit int) ([]model.Analytic, error)

	Close() error
}

// Open returns the backend named by driver ("memory" or "sqlite").
func Open(driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

// MonthRange returns the first and last day of year-month.
func MonthRange(year int, month time.Month) (caldate.Date, caldate.Date) {
	first := caldate.New(year, month, 1)
	return first, first.LastOfMonth()
}

// FetchWindow loads the months before, at and after anchor concurrently and
// merges them by event id. Together they cover any 6-week grid for anchor.
func FetchWindow(ctx context.Context, src MonthSource, anchor caldate.Date) ([]model.Event, error) {
	months := []caldate.Date{anchor.AddMonths(-1), anchor.FirstOfMonth(), anchor.AddMonths(1)}
	results := make([][]model.Event, len(months))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range months {
		g.Go(func() error {
			events, err := src.ListByMonth(gctx, m.Year, m.Month)
			if err != nil {
				return fmt.Errorf("fetch %04d-%02d: %w", m.Year, int(m.Month), err)
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeByID(results...), nil
}

// MergeByID concatenates lists, keeping the first event seen for each id.
func MergeByID(lists ...[]model.Event) []model.Event {
	seen := make(map[string]struct{})
	var out []model.Event
	for _, list := range lists {
		for _, e := range list {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

func sortEvents(events []model.Event) {
	slices.SortFunc(events, func(a, b model.Event) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		if c := a.EndDate.Compare(b.EndDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// prepare normalizes and validates in, returning the event to insert.
func prepare(in model.EventInput, id, createdBy string, now time.Time) (model.Event, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return model.Event{}, err
	}
	return model.Event{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Category:    in.Category,
		Industry:    in.Industry,
		Country:     in.Country,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// patch applies p to e and validates the outcome.
func patch(e model.Event, p model.EventPatch, now time.Time) (model.Event, error) {
	out := p.Apply(e)
	out.Title = strings.TrimSpace(out.Title)
	if out.Industry == "" {
		out.Industry = model.DefaultIndustry
	}
	if err := out.Validate(); err != nil {
		return model.Event{}, err
	}
	out.UpdatedAt = now
	return out, nil
}
