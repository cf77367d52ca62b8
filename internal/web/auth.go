package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/csrf"

	"evcal/internal/auth"
	appLog "evcal/internal/log"
	"evcal/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool       `json:"success"`
	User    model.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			appLog.Error("login failed", err)
		}
		appLog.Info("login rejected", "username", req.Username, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Неверный логин или пароль")
		return
	}

	sess := s.sessions.Create(u)
	http.SetCookie(w, s.sessionCookie(sess))
	s.track(r.Context(), u, model.ActionLogin, "", map[string]string{"remote": r.RemoteAddr})
	appLog.Info("user logged in", "username", u.Username, "admin", u.IsAdmin)

	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cfg.Session.CookieName); err == nil {
		s.sessions.Delete(c.Value)
	}
	if u, ok := auth.UserFrom(r.Context()); ok {
		s.track(r.Context(), u, model.ActionLogout, "", nil)
	}
	http.SetCookie(w, s.expiredCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	if s.csrfKey != nil {
		w.Header().Set("X-CSRF-Token", csrf.Token(r))
	}
	writeJSON(w, http.StatusOK, u)
}

// track records an analytics row. Failures are logged, never surfaced.
func (s *Server) track(ctx context.Context, u model.User, action model.Action, eventID string, meta map[string]string) {
	a := model.Analytic{
		UserID:    u.ID,
		EventID:   eventID,
		Action:    action,
		Timestamp: s.now().UTC(),
		Metadata:  meta,
	}
	if err := s.store.RecordAnalytic(ctx, a); err != nil {
		appLog.Warn("failed to record analytic", "action", string(action), "error", err)
	}
}
