package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"evcal/internal/caldate"
	"evcal/internal/model"
)

// Memory is a map-backed Store. Data lives only as long as the process.
type Memory struct {
	mu        sync.RWMutex
	events    map[string]model.Event
	analytics []model.Analytic
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{events: make(map[string]model.Event)}
}

func (m *Memory) List(_ context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	sortEvents(out)
	return out, nil
}

func (m *Memory) ListRange(_ context.Context, from, to caldate.Date) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, e := range m.events {
		if e.Overlaps(from, to) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

func (m *Memory) ListByMonth(ctx context.Context, year int, month time.Month) ([]model.Event, error) {
	from, to := MonthRange(year, month)
	return m.ListRange(ctx, from, to)
}

func (m *Memory) Get(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) Create(_ context.Context, in model.EventInput, createdBy string) (model.Event, error) {
	e, err := prepare(in, uuid.NewString(), createdBy, timeNow().UTC())
	if err != nil {
		return model.Event{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return e, nil
}

func (m *Memory) Update(_ context.Context, id string, p model.EventPatch) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	updated, err := patch(existing, p, timeNow().UTC())
	if err != nil {
		return model.Event{}, err
	}
	m.events[id] = updated
	return updated, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *Memory) ReplaceSource(_ context.Context, owner string, events []model.Event) error {
	now := timeNow().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.events {
		if e.CreatedBy == owner {
			delete(m.events, id)
		}
	}
	for _, e := range events {
		e.CreatedBy = owner
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		m.events[e.ID] = e
	}
	return nil
}

func (m *Memory) RecordAnalytic(_ context.Context, a model.Analytic) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = timeNow().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.analytics = append(m.analytics, a)
	return nil
}

func (m *Memory) ListAnalytics(_ context.Context, limit int) ([]model.Analytic, error) {
	m.mu.RLock()
	out := append([]model.Analytic(nil), m.analytics...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
