package web

import (
	"net/http"
	"strings"

	"evcal/internal/auth"
	"evcal/internal/ics"
	"evcal/internal/model"
	"evcal/internal/sanitize"
)

const (
	defaultAnalyticsLimit = 100
	maxAnalyticsLimit     = 1000
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.List(r.Context())
	if err != nil {
		writeStoreError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

func (s *Server) handleMonthEvents(w http.ResponseWriter, r *http.Request) {
	year, month, ok := parseYearMonth(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid year or month")
		return
	}
	events, err := s.store.ListByMonth(r.Context(), year, month)
	if err != nil {
		writeStoreError(w, "list month", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, "get", err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	s.track(r.Context(), u, model.ActionViewEvent, e.ID, nil)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.EventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in.Description = sanitize.Description(in.Description)

	u, _ := auth.UserFrom(r.Context())
	e, err := s.store.Create(r.Context(), in, u.ID)
	if err != nil {
		writeStoreError(w, "create", err)
		return
	}
	s.track(r.Context(), u, model.ActionCreateEvent, e.ID, map[string]string{"title": e.Title})
	writeJSON(w, http.StatusCreated, e)
}

// editable reports whether the event id may be changed through the API.
// Events owned by a feed are rewritten on every refresh, so they are
// read-only here.
func (s *Server) editable(w http.ResponseWriter, r *http.Request, id string) bool {
	e, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, "get", err)
		return false
	}
	if strings.HasPrefix(e.CreatedBy, ics.OwnerPrefix) {
		writeError(w, http.StatusForbidden, "Imported events are read-only")
		return false
	}
	return true
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.editable(w, r, id) {
		return
	}
	var p model.EventPatch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if p.Description != nil {
		clean := sanitize.Description(*p.Description)
		p.Description = &clean
	}

	e, err := s.store.Update(r.Context(), id, p)
	if err != nil {
		writeStoreError(w, "update", err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	s.track(r.Context(), u, model.ActionUpdateEvent, e.ID, nil)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.editable(w, r, id) {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, "delete", err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	s.track(r.Context(), u, model.ActionDeleteEvent, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), defaultAnalyticsLimit)
	if limit <= 0 {
		limit = defaultAnalyticsLimit
	}
	limit = min(limit, maxAnalyticsLimit)

	rows, err := s.store.ListAnalytics(r.Context(), limit)
	if err != nil {
		writeStoreError(w, "analytics", err)
		return
	}
	if rows == nil {
		rows = []model.Analytic{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func nonNil(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	return events
}
