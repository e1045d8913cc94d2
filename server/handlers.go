package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-card-console/guard"
	"github.com/jrsteele09/go-card-console/identity"
	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
	"github.com/jrsteele09/go-card-console/resilience"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NavItem is a view the signed-in user may open.
type NavItem struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// ViewResponse is the page model of a console view.
type ViewResponse struct {
	View          string                    `json:"view"`
	Title         string                    `json:"title"`
	Path          string                    `json:"path"`
	User          *identity.Identity        `json:"user"`
	Navigation    []NavItem                 `json:"navigation"`
	Notifications []resilience.Notification `json:"notifications,omitempty"`
}

// SessionResponse describes the session state for status displays.
type SessionResponse struct {
	Authenticated bool               `json:"authenticated"`
	User          *identity.Identity `json:"user,omitempty"`
	Monitor       string             `json:"monitor"`
	RemainingMs   int64              `json:"remainingMs"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
}

type ErrorResponse struct {
	Kind    string              `json:"kind"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// IndexHandler sends the user to their landing page, or to login.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.console.Session
		if !sess.IsAuthenticated() {
			http.Redirect(w, r, s.console.Guard.LoginRoute(), http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, s.console.Guard.LandingRoute(sess.CurrentIdentity()), http.StatusSeeOther)
	}
}

func (s *Server) ViewHandler(view View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := s.console.Session.CurrentIdentity()
		writeJSON(w, http.StatusOK, ViewResponse{
			View:          view.Name,
			Title:         view.Title,
			Path:          r.URL.RequestURI(),
			User:          id,
			Navigation:    s.navigation(id),
			Notifications: s.console.Notifications.Drain(),
		})
	}
}

func (s *Server) navigation(id *identity.Identity) []NavItem {
	items := make([]NavItem, 0)
	for _, view := range s.Views() {
		if guard.Permits(id, view.Route) {
			items = append(items, NavItem{Name: view.Name, Title: view.Title, Path: view.Route.Path})
		}
	}
	return items
}

// ProfileHandler fetches the profile from the backend with the session's
// token. A rejected token ends the session like any other protected call.
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.console.Session.IsAuthenticated() {
			writeJSONError(w, http.StatusUnauthorized, string(resilience.KindTokenExpired), "Please log in to continue.")
			return
		}
		profile, err := s.console.Provider.Profile(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.console.Session
		monitor := sess.Monitor()
		resp := SessionResponse{
			Authenticated: sess.IsAuthenticated(),
			Monitor:       monitor.State().String(),
			RemainingMs:   monitor.Remaining().Milliseconds(),
		}
		if resp.Authenticated {
			resp.User = sess.CurrentIdentity()
			if tokens, ok := sess.Tokens(); ok {
				expiresAt := tokens.ExpiresAt()
				resp.ExpiresAt = &expiresAt
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// NotificationsHandler hands over and forgets the queued messages.
func (s *Server) NotificationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := s.console.Notifications.Drain()
		if items == nil {
			items = []resilience.Notification{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Kind: kind, Message: message})
}

// writeFailure renders a classified failure with its user facing message.
// No response at all is reported as a bad gateway.
func writeFailure(w http.ResponseWriter, err error) {
	var failure *resilience.Error
	if errors.As(err, &failure) {
		status := failure.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, ErrorResponse{Kind: string(failure.Kind), Message: failure.Message, Fields: failure.Fields})
		return
	}
	switch {
	case errors.Is(err, apperrors.ErrNotAuthenticated), errors.Is(err, apperrors.ErrTokenExpired):
		writeJSONError(w, http.StatusUnauthorized, string(resilience.KindTokenExpired), "Please log in to continue.")
	default:
		log.Err(err).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, string(resilience.KindUnknown), "Something went wrong. Please try again.")
	}
}
