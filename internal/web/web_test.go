package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"evcal/internal/auth"
	"evcal/internal/caldate"
	"evcal/internal/config"
	"evcal/internal/ics"
	"evcal/internal/layout"
	"evcal/internal/model"
	"evcal/internal/store"
)

func newTestServer(t *testing.T, csrfKey string) (*Server, http.Handler) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Store.Driver = "memory"
	cfg.Timezone = "UTC"
	cfg.CSRFKey = csrfKey
	cfg.Users = []config.UserConfig{
		{Username: "admin", Password: "admin-pass", Admin: true},
		{Username: "viewer", Password: "viewer-pass"},
	}
	cfg.Normalize()

	users, err := auth.NewUsers(cfg.Users)
	if err != nil {
		t.Fatalf("NewUsers: %v", err)
	}
	s, err := NewServer(cfg, store.NewMemory(), users, auth.NewSessions(cfg.Session.TTL))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	return s, s.Handler()
}

type request struct {
	method  string
	path    string
	body    string
	cookies []*http.Cookie
	header  map[string]string
}

func do(h http.Handler, req request) *httptest.ResponseRecorder {
	var r *http.Request
	if req.body != "" {
		r = httptest.NewRequest(req.method, req.path, strings.NewReader(req.body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(req.method, req.path, nil)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func login(t *testing.T, h http.Handler, username, password string) *http.Cookie {
	t.Helper()
	rec := do(h, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   `{"username":"` + username + `","password":"` + password + `"}`,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status = %d, body = %s", username, rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "evcal_session" {
			return c
		}
	}
	t.Fatalf("login %s: no session cookie", username)
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createEvent(t *testing.T, h http.Handler, cookie *http.Cookie, body string) model.Event {
	t.Helper()
	rec := do(h, request{method: http.MethodPost, path: "/api/events", body: body, cookies: []*http.Cookie{cookie}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decode[model.Event](t, rec)
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, "")
	rec := do(h, request{method: http.MethodGet, path: "/health"})
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestLogin(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := do(h, request{method: http.MethodPost, path: "/api/auth/login", body: `{"username":"admin","password":"admin-pass"}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[loginResponse](t, rec)
	if !resp.Success || resp.User.Username != "admin" || !resp.User.IsAdmin {
		t.Fatalf("response = %+v", resp)
	}

	rec = do(h, request{method: http.MethodPost, path: "/api/auth/login", body: `{"username":"admin","password":"wrong"}`})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", rec.Code)
	}
	if msg := decode[errorResponse](t, rec).Message; msg != "Неверный логин или пароль" {
		t.Fatalf("message = %q", msg)
	}

	rec = do(h, request{method: http.MethodPost, path: "/api/auth/login", body: `not json`})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", rec.Code)
	}
}

func TestCurrentUserAndLogout(t *testing.T) {
	_, h := newTestServer(t, "")
	cookie := login(t, h, "viewer", "viewer-pass")

	rec := do(h, request{method: http.MethodGet, path: "/api/auth/user", cookies: []*http.Cookie{cookie}})
	if rec.Code != http.StatusOK {
		t.Fatalf("user status = %d", rec.Code)
	}
	if u := decode[model.User](t, rec); u.Username != "viewer" || u.IsAdmin {
		t.Fatalf("user = %+v", u)
	}

	rec = do(h, request{method: http.MethodPost, path: "/api/auth/logout", cookies: []*http.Cookie{cookie}})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	rec = do(h, request{method: http.MethodGet, path: "/api/auth/user", cookies: []*http.Cookie{cookie}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("after logout status = %d", rec.Code)
	}
}

func TestAuthorization(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := do(h, request{method: http.MethodGet, path: "/api/events"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
	if msg := decode[errorResponse](t, rec).Message; msg != "Unauthorized" {
		t.Fatalf("message = %q", msg)
	}

	viewer := login(t, h, "viewer", "viewer-pass")
	rec = do(h, request{
		method:  http.MethodPost,
		path:    "/api/events",
		body:    `{"title":"x","startDate":"2025-03-01","endDate":"2025-03-01","category":"internal"}`,
		cookies: []*http.Cookie{viewer},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer create status = %d", rec.Code)
	}
	if msg := decode[errorResponse](t, rec).Message; msg != "Admin access required" {
		t.Fatalf("message = %q", msg)
	}

	rec = do(h, request{method: http.MethodGet, path: "/api/analytics", cookies: []*http.Cookie{viewer}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer analytics status = %d", rec.Code)
	}

	rec = do(h, request{
		method:  http.MethodGet,
		path:    "/api/events",
		cookies: []*http.Cookie{{Name: "evcal_session", Value: "forged"}},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged session status = %d", rec.Code)
	}
}

func TestEventLifecycle(t *testing.T) {
	_, h := newTestServer(t, "")
	admin := login(t, h, "admin", "admin-pass")
	jar := []*http.Cookie{admin}

	e := createEvent(t, h, admin, `{
		"title": "  Board meeting  ",
		"description": "<p>Agenda</p><script>alert(1)</script>",
		"startDate": "2025-03-10",
		"endDate": "2025-03-12",
		"category": "internal"
	}`)
	if e.ID == "" || e.Title != "Board meeting" {
		t.Fatalf("created = %+v", e)
	}
	if strings.Contains(e.Description, "script") || !strings.Contains(e.Description, "Agenda") {
		t.Fatalf("description not sanitized: %q", e.Description)
	}
	if e.Industry != model.DefaultIndustry {
		t.Fatalf("industry = %q, want default", e.Industry)
	}

	rec := do(h, request{method: http.MethodGet, path: "/api/events/" + e.ID, cookies: jar})
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = do(h, request{method: http.MethodPut, path: "/api/events/" + e.ID, body: `{"endDate":"2025-03-14"}`, cookies: jar})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated := decode[model.Event](t, rec)
	if updated.EndDate.String() != "2025-03-14" || updated.Title != "Board meeting" {
		t.Fatalf("updated = %+v", updated)
	}

	rec = do(h, request{method: http.MethodPut, path: "/api/events/" + e.ID, body: `{"endDate":"2025-03-01"}`, cookies: jar})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed update status = %d", rec.Code)
	}

	rec = do(h, request{method: http.MethodGet, path: "/api/events", cookies: jar})
	if list := decode[[]model.Event](t, rec); len(list) != 1 {
		t.Fatalf("list = %d events", len(list))
	}

	rec = do(h, request{method: http.MethodDelete, path: "/api/events/" + e.ID, cookies: jar})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = do(h, request{method: http.MethodGet, path: "/api/events/" + e.ID, cookies: jar})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
	if msg := decode[errorResponse](t, rec).Message; msg != "Event not found" {
		t.Fatalf("message = %q", msg)
	}
	rec = do(h, request{method: http.MethodDelete, path: "/api/events/" + e.ID, cookies: jar})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
	rec = do(h, request{method: http.MethodPut, path: "/api/events/missing", body: `{"title":"x"}`, cookies: jar})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update missing status = %d", rec.Code)
	}
}

func TestCreateRejectsInvalidEvent(t *testing.T) {
	_, h := newTestServer(t, "")
	admin := login(t, h, "admin", "admin-pass")

	rec := do(h, request{
		method:  http.MethodPost,
		path:    "/api/events",
		body:    `{"title":"","startDate":"2025-03-10","endDate":"2025-03-01","category":"nope"}`,
		cookies: []*http.Cookie{admin},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Message == "" || len(resp.Fields) == 0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestImportedEventsAreReadOnly(t *testing.T) {
	s, h := newTestServer(t, "")
	admin := login(t, h, "admin", "admin-pass")
	jar := []*http.Cookie{admin}

	imported := model.Event{
		ID:        "ics-feed-1",
		Title:     "Выставка",
		StartDate: caldate.MustParse("2025-03-10"),
		EndDate:   caldate.MustParse("2025-03-12"),
		Category:  model.CategoryExternal,
		Industry:  model.DefaultIndustry,
	}
	if err := s.store.ReplaceSource(context.Background(), ics.Owner("feed"), []model.Event{imported}); err != nil {
		t.Fatalf("ReplaceSource: %v", err)
	}

	rec := do(h, request{method: http.MethodPut, path: "/api/events/" + imported.ID, body: `{"title":"Правка"}`, cookies: jar})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("update status = %d, want 403", rec.Code)
	}
	if msg := decode[errorResponse](t, rec).Message; msg != "Imported events are read-only" {
		t.Fatalf("message = %q", msg)
	}
	rec = do(h, request{method: http.MethodDelete, path: "/api/events/" + imported.ID, cookies: jar})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("delete status = %d, want 403", rec.Code)
	}

	rec = do(h, request{method: http.MethodGet, path: "/api/events/" + imported.ID, cookies: jar})
	if got := decode[model.Event](t, rec); got.Title != "Выставка" {
		t.Fatalf("imported event changed: %+v", got)
	}
}

func TestMonthEvents(t *testing.T) {
	_, h := newTestServer(t, "")
	admin := login(t, h, "admin", "admin-pass")
	jar := []*http.Cookie{admin}

	createEvent(t, h, admin, `{"title":"Feb to Mar","startDate":"2025-02-25","endDate":"2025-03-02","category":"external"}`)
	createEvent(t, h, admin, `{"title":"April","startDate":"2025-04-05","endDate":"2025-04-05","category":"external"}`)

	rec := do(h, request{method: http.MethodGet, path: "/api/events/2025/3", cookies: jar})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[[]model.Event](t, rec)
	if len(list) != 1 || list[0].Title != "Feb to Mar" {
		t.Fatalf("march = %+v", list)
	}

	for _, path := range []string{"/api/events/2025/13", "/api/events/2025/0", "/api/events/abc/3", "/api/events/0/3"} {
		rec := do(h, request{method: http.MethodGet, path: path, cookies: jar})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if msg := decode[errorResponse](t, rec).Message; msg != "Invalid year or month" {
			t.Fatalf("%s: message = %q", path, msg)
		}
	}
}

func TestLayoutEndpoint(t *testing.T) {
	_, h := newTestServer(t, "")
	admin := login(t, h, "admin", "admin-pass")
	jar := []*http.Cookie{admin}

	createEvent(t, h, admin, `{"title":"Week","startDate":"2025-03-06","endDate":"2025-03-11","category":"internal"}`)
	createEvent(t, h, admin, `{"title":"Expo","startDate":"2025-03-07","endDate":"2025-03-07","category":"external","industry":"фарма"}`)
	createEvent(t, h, admin, `{"title":"Outside","startDate":"2025-05-01","endDate":"2025-05-01","category":"internal"}`)

	rec := do(h, request{method: http.MethodGet, path: "/api/layout/2025/3", cookies: jar})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[layout.Result](t, rec)
	if len(res.Days) != layout.GridDays {
		t.Fatalf("days = %d", len(res.Days))
	}
	if len(res.Visible) != 2 {
		t.Fatalf("visible = %d", len(res.Visible))
	}
	// "Week" runs Thursday to Tuesday and splits at the week boundary.
	if len(res.Segments) != 3 {
		t.Fatalf("segments = %+v", res.Segments)
	}
	if res.Anchor.String() != "2025-03-01" {
		t.Fatalf("anchor = %s", res.Anchor)
	}

	rec = do(h, request{method: http.MethodGet, path: "/api/layout/2025/3?external=false", cookies: jar})
	if res := decode[layout.Result](t, rec); len(res.Visible) != 1 || res.Visible[0].Title != "Week" {
		t.Fatalf("external hidden = %+v", res.Visible)
	}

	rec = do(h, request{method: http.MethodGet, path: "/api/layout/2025/3?hide_industry=%D1%84%D0%B0%D1%80%D0%BC%D0%B0", cookies: jar})
	if res := decode[layout.Result](t, rec); len(res.Visible) != 1 {
		t.Fatalf("industry hidden = %+v", res.Visible)
	}

	for _, q := range []string{"?hide_industry=bogus", "?hide_country=Atlantis", "?internal=maybe", "?consistent=2x"} {
		rec := do(h, request{method: http.MethodGet, path: "/api/layout/2025/3" + q, cookies: jar})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", q, rec.Code)
		}
	}

	rec = do(h, request{method: http.MethodGet, path: "/api/layout/2025/3?consistent=true", cookies: jar})
	if rec.Code != http.StatusOK {
		t.Fatalf("consistent status = %d", rec.Code)
	}
}

func TestAnalyticsRecorded(t *testing.T) {
	_, h := newTestServer(t, "")
	admin := login(t, h, "admin", "admin-pass")
	jar := []*http.Cookie{admin}

	e := createEvent(t, h, admin, `{"title":"Seen","startDate":"2025-03-03","endDate":"2025-03-03","category":"internal"}`)
	do(h, request{method: http.MethodGet, path: "/api/events/" + e.ID, cookies: jar})

	rec := do(h, request{method: http.MethodGet, path: "/api/analytics?limit=5000", cookies: jar})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rows := decode[[]model.Analytic](t, rec)
	seen := map[model.Action]bool{}
	for _, a := range rows {
		seen[a.Action] = true
		if a.UserID != auth.UserID("admin") {
			t.Fatalf("analytic user = %q", a.UserID)
		}
	}
	for _, want := range []model.Action{model.ActionLogin, model.ActionCreateEvent, model.ActionViewEvent} {
		if !seen[want] {
			t.Fatalf("missing %s in %+v", want, rows)
		}
	}
}

func TestExport(t *testing.T) {
	_, h := newTestServer(t, "")
	admin := login(t, h, "admin", "admin-pass")
	createEvent(t, h, admin, `{"title":"Exported","startDate":"2025-03-03","endDate":"2025-03-04","category":"foreign","country":"Япония"}`)

	rec := do(h, request{method: http.MethodGet, path: "/calendar.ics", cookies: []*http.Cookie{admin}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:Exported", "VALUE=DATE:20250303", "VALUE=DATE:20250305"} {
		if !strings.Contains(body, want) {
			t.Fatalf("export missing %q:\n%s", want, body)
		}
	}
}

func TestPages(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := do(h, request{method: http.MethodGet, path: "/"})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("anonymous page status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?next=%2F" {
		t.Fatalf("redirect = %q", loc)
	}

	rec = do(h, request{method: http.MethodGet, path: "/login"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "login-form") {
		t.Fatalf("login page = %d", rec.Code)
	}

	admin := login(t, h, "admin", "admin-pass")
	jar := []*http.Cookie{admin}
	createEvent(t, h, admin, `{"title":"Spring fair","startDate":"2025-03-20","endDate":"2025-03-25","category":"external","description":"<b>bold</b>"}`)

	rec = do(h, request{method: http.MethodGet, path: "/", cookies: jar})
	if rec.Code != http.StatusOK {
		t.Fatalf("current month status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`data-ready="true"`, "Март 2025", "Spring fair", "<b>bold</b>", "cat-external"} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}

	rec = do(h, request{method: http.MethodGet, path: "/month/2025/4", cookies: jar})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Апрель 2025") {
		t.Fatalf("april page = %d", rec.Code)
	}
	rec = do(h, request{method: http.MethodGet, path: "/month/2025/13", cookies: jar})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad month page = %d", rec.Code)
	}

	rec = do(h, request{method: http.MethodGet, path: "/login?next=/month/2025/4", cookies: jar})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/month/2025/4" {
		t.Fatalf("logged-in login redirect = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = do(h, request{method: http.MethodGet, path: "/static/style.css"})
	if rec.Code != http.StatusOK {
		t.Fatalf("stylesheet status = %d", rec.Code)
	}
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                 "/",
		"/month/2025/3":    "/month/2025/3",
		"//evil.example":   "/",
		"https://evil":     "/",
		`/\evil.example`:  "/",
		"/?external=false": "/?external=false",
	}
	for in, want := range cases {
		if got := safeNext(in); got != want {
			t.Fatalf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

var csrfMeta = regexp.MustCompile(`name="csrf-token" content="([^"]*)"`)

func TestCSRFProtection(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	_, h := newTestServer(t, key)
	creds := `{"username":"admin","password":"admin-pass"}`

	rec := do(h, request{method: http.MethodPost, path: "/api/auth/login", body: creds})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tokenless login status = %d", rec.Code)
	}
	if msg := decode[errorResponse](t, rec).Message; msg != "Invalid CSRF token" {
		t.Fatalf("message = %q", msg)
	}

	page := do(h, request{method: http.MethodGet, path: "/login"})
	m := csrfMeta.FindStringSubmatch(page.Body.String())
	if m == nil || m[1] == "" {
		t.Fatal("login page carries no csrf token")
	}
	token := html.UnescapeString(m[1])

	rec = do(h, request{
		method:  http.MethodPost,
		path:    "/api/auth/login",
		body:    creds,
		cookies: page.Result().Cookies(),
		header:  map[string]string{"X-CSRF-Token": token},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login with token status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
