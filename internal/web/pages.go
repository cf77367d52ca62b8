package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"

	"evcal/internal/auth"
	"evcal/internal/caldate"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/render"
)

// templateFuncs lets templates mark values the server already made safe:
// inline styles built from numbers and descriptions that went through the
// sanitizer on write.
var templateFuncs = template.FuncMap{
	"css":      func(s string) template.CSS { return template.CSS(s) },
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
	"monthURL": monthURL,
}

func monthURL(year, month int, query string) string {
	u := fmt.Sprintf("/month/%d/%d", year, month)
	if query != "" {
		u += "?" + query
	}
	return u
}

// categoryToggle is one clickable legend entry.
type categoryToggle struct {
	Label string
	Class string
	On    bool
	URL   string
}

type eventRow struct {
	ID          string
	Title       string
	Dates       string
	Class       string
	Category    string
	Industry    string
	Country     string
	Description string
}

type monthPage struct {
	Cal        render.Month
	Query      string
	Toggles    []categoryToggle
	Consistent bool
	LayersURL  string
	Events     []eventRow
	User       model.User
	CSRFToken  string
}

type loginPage struct {
	Next      string
	CSRFToken string
}

func (s *Server) today() caldate.Date {
	return caldate.FromTime(s.now().In(s.loc))
}

func (s *Server) handleCurrentMonthPage(w http.ResponseWriter, r *http.Request) {
	s.renderMonth(w, r, s.today().FirstOfMonth())
}

func (s *Server) handleMonthPage(w http.ResponseWriter, r *http.Request) {
	year, month, ok := parseYearMonth(r)
	if !ok {
		http.Error(w, "Invalid year or month", http.StatusBadRequest)
		return
	}
	s.renderMonth(w, r, anchorOf(year, month))
}

func (s *Server) renderMonth(w http.ResponseWriter, r *http.Request, anchor caldate.Date) {
	v, err := s.parseViewQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.computeMonth(r.Context(), anchor, v)
	if err != nil {
		appLog.Error("month page: layout failed", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	m := render.BuildMonth(res, s.geometry, s.today())
	page := monthPage{
		Cal:        m,
		Query:      v.Encode(),
		Consistent: v.Consistent,
		CSRFToken:  s.csrfToken(r),
	}
	page.User, _ = auth.UserFrom(r.Context())

	for _, c := range model.Categories {
		flipped := v
		flipped.Filter = v.Filter.SetCategory(c, !v.Filter.Category(c))
		page.Toggles = append(page.Toggles, categoryToggle{
			Label: c.Label(),
			Class: c.Style(),
			On:    v.Filter.Category(c),
			URL:   monthURL(m.Year, m.Month, flipped.Encode()),
		})
	}
	layers := v
	layers.Consistent = !v.Consistent
	page.LayersURL = monthURL(m.Year, m.Month, layers.Encode())

	for _, e := range res.Visible {
		page.Events = append(page.Events, eventRow{
			ID:          e.ID,
			Title:       e.Title,
			Dates:       formatDates(e),
			Class:       e.Category.Style(),
			Category:    e.Category.Label(),
			Industry:    string(e.Industry),
			Country:     string(e.Country),
			Description: e.Description,
		})
	}

	s.renderPage(w, "month.html", page)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFrom(r.Context()); ok {
		http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}
	s.renderPage(w, "login.html", loginPage{
		Next:      safeNext(r.URL.Query().Get("next")),
		CSRFToken: s.csrfToken(r),
	})
}

// renderPage executes into a buffer first so a template error never leaves
// a half-written page behind.
func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		appLog.Error("template execution failed", err, "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) csrfToken(r *http.Request) string {
	if s.csrfKey == nil {
		return ""
	}
	return csrf.Token(r)
}

// safeNext keeps post-login redirects on this host.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

func formatDates(e model.Event) string {
	const layout = "02.01.2006"
	start := e.StartDate.Time().Format(layout)
	if e.StartDate == e.EndDate {
		return start
	}
	return start + " – " + e.EndDate.Time().Format(layout)
}
