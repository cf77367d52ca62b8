package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"evcal/internal/caldate"
	"evcal/internal/ics"
	"evcal/internal/layout"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/store"
)

// viewQuery is the filter state carried in the query string of the layout
// endpoint and the month page.
type viewQuery struct {
	Filter     layout.FilterSet
	Consistent bool
}

// parseViewQuery reads internal, external and foreign (default true),
// repeated hide_industry and hide_country values, and consistent (default
// from config).
func (s *Server) parseViewQuery(q url.Values) (viewQuery, error) {
	v := viewQuery{Filter: layout.AllVisible()}
	for _, c := range model.Categories {
		on, err := parseBoolDefault(q.Get(string(c)), true)
		if err != nil {
			return viewQuery{}, fmt.Errorf("invalid %s flag", c)
		}
		v.Filter = v.Filter.SetCategory(c, on)
	}

	for _, raw := range q["hide_industry"] {
		i := model.Industry(raw)
		if !i.Valid() {
			return viewQuery{}, fmt.Errorf("unknown industry %q", raw)
		}
		if v.Filter.Industries == nil {
			v.Filter.Industries = make(map[model.Industry]bool)
		}
		v.Filter.Industries[i] = false
	}
	for _, raw := range q["hide_country"] {
		c := model.Country(raw)
		if raw == "" || !c.Valid() {
			return viewQuery{}, fmt.Errorf("unknown country %q", raw)
		}
		if v.Filter.Countries == nil {
			v.Filter.Countries = make(map[model.Country]bool)
		}
		v.Filter.Countries[c] = false
	}

	consistent, err := parseBoolDefault(q.Get("consistent"), s.cfg.Layout.ConsistentLayers)
	if err != nil {
		return viewQuery{}, fmt.Errorf("invalid consistent flag")
	}
	v.Consistent = consistent
	return v, nil
}

// Encode renders v back into a query string. Defaults are omitted so plain
// URLs stay plain.
func (v viewQuery) Encode() string {
	q := url.Values{}
	for _, c := range model.Categories {
		if !v.Filter.Category(c) {
			q.Set(string(c), "false")
		}
	}
	for _, i := range model.Industries {
		if on, ok := v.Filter.Industries[i]; ok && !on {
			q.Add("hide_industry", string(i))
		}
	}
	for _, c := range model.Countries {
		if on, ok := v.Filter.Countries[c]; ok && !on {
			q.Add("hide_country", string(c))
		}
	}
	if v.Consistent {
		q.Set("consistent", "true")
	}
	return q.Encode()
}

// computeMonth fetches the three months around anchor and runs the layout.
func (s *Server) computeMonth(ctx context.Context, anchor caldate.Date, v viewQuery) (layout.Result, error) {
	events, err := store.FetchWindow(ctx, s.store, anchor)
	if err != nil {
		return layout.Result{}, err
	}
	res := layout.Compute(anchor, events, v.Filter, layout.Options{ConsistentLayers: v.Consistent})
	appLog.Debug("month laid out",
		"month", fmt.Sprintf("%04d-%02d", anchor.Year, int(anchor.Month)),
		"fetched", len(events),
		"visible", len(res.Visible),
		"segments", len(res.Segments),
	)
	return res, nil
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	year, month, ok := parseYearMonth(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid year or month")
		return
	}
	v, err := s.parseViewQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.computeMonth(r.Context(), anchorOf(year, month), v)
	if err != nil {
		writeStoreError(w, "layout", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.List(r.Context())
	if err != nil {
		writeStoreError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="evcal.ics"`)
	if err := ics.Export(w, "evcal", events); err != nil {
		appLog.Error("ics export failed", err)
	}
}
