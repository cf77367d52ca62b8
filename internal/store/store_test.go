package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"evcal/internal/caldate"
	"evcal/internal/model"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func input(title, start, end string) model.EventInput {
	return model.EventInput{
		Title:     title,
		StartDate: caldate.MustParse(start),
		EndDate:   caldate.MustParse(end),
		Category:  model.CategoryInternal,
	}
}

func titles(events []model.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Title
	}
	return out
}

func TestCreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e, err := s.Create(ctx, input("  Совещание  ", "2025-03-03", "2025-03-04"), "u1")
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if e.ID == "" || e.Title != "Совещание" || e.Industry != model.DefaultIndustry || e.CreatedBy != "u1" {
				t.Fatalf("created = %+v", e)
			}

			got, err := s.Get(ctx, e.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Title != e.Title || got.StartDate != e.StartDate || got.EndDate != e.EndDate {
				t.Fatalf("Get = %+v, want %+v", got, e)
			}

			end := caldate.MustParse("2025-03-10")
			updated, err := s.Update(ctx, e.ID, model.EventPatch{EndDate: &end})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if updated.EndDate != end || updated.Title != "Совещание" {
				t.Fatalf("updated = %+v", updated)
			}

			bad := caldate.MustParse("2025-02-01")
			_, err = s.Update(ctx, e.ID, model.EventPatch{EndDate: &bad})
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("reversed update err = %v", err)
			}

			if err := s.Delete(ctx, e.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, e.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after delete err = %v", err)
			}
			if err := s.Delete(ctx, e.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second Delete err = %v", err)
			}
			if _, err := s.Update(ctx, "missing", model.EventPatch{}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Update missing err = %v", err)
			}
		})
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, input("x", "2025-03-05", "2025-03-01"), "u1")
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v", err)
			}
			all, _ := s.List(ctx)
			if len(all) != 0 {
				t.Fatalf("invalid event stored: %v", all)
			}
		})
	}
}

func TestListByMonthUsesIntersection(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, in := range []model.EventInput{
				input("inside", "2025-03-10", "2025-03-12"),
				input("from february", "2025-02-25", "2025-03-02"),
				input("into april", "2025-03-30", "2025-04-03"),
				input("covers", "2025-02-01", "2025-05-01"),
				input("before", "2025-02-01", "2025-02-28"),
				input("after", "2025-04-01", "2025-04-02"),
			} {
				if _, err := s.Create(ctx, in, "u1"); err != nil {
					t.Fatalf("Create %s: %v", in.Title, err)
				}
			}

			got, err := s.ListByMonth(ctx, 2025, time.March)
			if err != nil {
				t.Fatalf("ListByMonth: %v", err)
			}
			want := []string{"covers", "from february", "inside", "into april"}
			if fmt.Sprint(titles(got)) != fmt.Sprint(want) {
				t.Fatalf("March = %v, want %v", titles(got), want)
			}

			all, _ := s.List(ctx)
			if len(all) != 6 {
				t.Fatalf("List = %d events", len(all))
			}
		})
	}
}

func TestReplaceSource(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			manual, err := s.Create(ctx, input("manual", "2025-03-01", "2025-03-01"), "u1")
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			imported := func(id, title string) model.Event {
				return model.Event{
					ID: id, Title: title,
					StartDate: caldate.MustParse("2025-03-05"), EndDate: caldate.MustParse("2025-03-05"),
					Category: model.CategoryExternal, Industry: model.DefaultIndustry,
				}
			}

			if err := s.ReplaceSource(ctx, "ics:feed", []model.Event{imported("a", "A"), imported("b", "B")}); err != nil {
				t.Fatalf("ReplaceSource: %v", err)
			}
			if err := s.ReplaceSource(ctx, "ics:feed", []model.Event{imported("c", "C")}); err != nil {
				t.Fatalf("ReplaceSource: %v", err)
			}

			all, _ := s.List(ctx)
			if fmt.Sprint(titles(all)) != "[manual C]" {
				t.Fatalf("after replace = %v", titles(all))
			}
			c, err := s.Get(ctx, "c")
			if err != nil || c.CreatedBy != "ics:feed" {
				t.Fatalf("imported = %+v, %v", c, err)
			}
			if _, err := s.Get(ctx, manual.ID); err != nil {
				t.Fatalf("manual event lost: %v", err)
			}

			if err := s.ReplaceSource(ctx, "ics:feed", nil); err != nil {
				t.Fatalf("ReplaceSource empty: %v", err)
			}
			all, _ = s.List(ctx)
			if len(all) != 1 {
				t.Fatalf("after clearing = %v", titles(all))
			}
		})
	}
}

func TestSQLSkipsInvalidRows(t *testing.T) {
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	ctx := context.Background()

	good, err := sq.Create(ctx, input("Годное", "2025-03-10", "2025-03-10"), "u")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	bad := toRecord(good)
	bad.ID = "bogus-row"
	bad.Category = "bogus"
	if err := sq.db.Create(&bad).Error; err != nil {
		t.Fatalf("insert raw row: %v", err)
	}

	all, err := sq.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[0].ID != good.ID {
		t.Fatalf("List = %v, want only the valid event", titles(all))
	}
	month, err := sq.ListByMonth(ctx, 2025, time.March)
	if err != nil || len(month) != 1 {
		t.Fatalf("ListByMonth = %v, %v", titles(month), err)
	}
	for _, e := range month {
		_ = e.Category.Label()
	}
	if _, err := sq.Get(ctx, "bogus-row"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get invalid row err = %v, want ErrNotFound", err)
	}
	if err := sq.Delete(ctx, "bogus-row"); err != nil {
		t.Fatalf("Delete invalid row: %v", err)
	}
}

func TestAnalyticsNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, a := range []model.Action{model.ActionLogin, model.ActionViewEvent, model.ActionLogout} {
				err := s.RecordAnalytic(ctx, model.Analytic{
					UserID:    "u1",
					Action:    a,
					Timestamp: base.Add(time.Duration(i) * time.Minute),
					Metadata:  map[string]string{"n": fmt.Sprint(i)},
				})
				if err != nil {
					t.Fatalf("RecordAnalytic: %v", err)
				}
			}
			got, err := s.ListAnalytics(ctx, 2)
			if err != nil {
				t.Fatalf("ListAnalytics: %v", err)
			}
			if len(got) != 2 || got[0].Action != model.ActionLogout || got[1].Action != model.ActionViewEvent {
				t.Fatalf("analytics = %+v", got)
			}
			if got[0].ID == "" || got[0].Metadata["n"] != "2" {
				t.Fatalf("analytic = %+v", got[0])
			}
		})
	}
}

type countingSource struct {
	calls  atomic.Int32
	events map[time.Month][]model.Event
	fail   time.Month
}

func (c *countingSource) ListByMonth(_ context.Context, _ int, m time.Month) ([]model.Event, error) {
	c.calls.Add(1)
	if m == c.fail {
		return nil, errors.New("boom")
	}
	return c.events[m], nil
}

func TestFetchWindowMergesAdjacentMonths(t *testing.T) {
	span := model.Event{ID: "span", Title: "span"}
	src := &countingSource{events: map[time.Month][]model.Event{
		time.February: {{ID: "feb"}, span},
		time.March:    {span, {ID: "mar"}},
		time.April:    {{ID: "apr"}},
	}}

	got, err := FetchWindow(context.Background(), src, caldate.MustParse("2025-03-15"))
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if src.calls.Load() != 3 {
		t.Fatalf("calls = %d", src.calls.Load())
	}
	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	if fmt.Sprint(ids) != "[feb span mar apr]" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestFetchWindowCrossesYear(t *testing.T) {
	var seen []string
	src := monthFunc(func(y int, m time.Month) []model.Event {
		return []model.Event{{ID: fmt.Sprintf("%d-%02d", y, int(m))}}
	})
	got, err := FetchWindow(context.Background(), src, caldate.MustParse("2025-01-10"))
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	for _, e := range got {
		seen = append(seen, e.ID)
	}
	if fmt.Sprint(seen) != "[2024-12 2025-01 2025-02]" {
		t.Fatalf("months = %v", seen)
	}
}

type monthFunc func(int, time.Month) []model.Event

func (f monthFunc) ListByMonth(_ context.Context, y int, m time.Month) ([]model.Event, error) {
	return f(y, m), nil
}

func TestFetchWindowPropagatesError(t *testing.T) {
	src := &countingSource{fail: time.April}
	if _, err := FetchWindow(context.Background(), src, caldate.MustParse("2025-03-01")); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenDrivers(t *testing.T) {
	s, err := Open("memory", "")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("Open memory = %T", s)
	}
	if _, err := Open("postgres", "x"); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
