package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-card-console/guard"
	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
	"github.com/jrsteele09/go-card-console/provider"
	"github.com/jrsteele09/go-card-console/resilience"
	"github.com/pkg/errors"
)

// LoginPageData is the page model of the login view.
type LoginPageData struct {
	View          string                    `json:"view"`
	ReturnURL     string                    `json:"returnUrl,omitempty"`
	Notifications []resilience.Notification `json:"notifications,omitempty"`
}

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	ReturnURL string `json:"returnUrl"`
}

func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnURL := guard.ReturnURLFrom(r.URL.Query())
		sess := s.console.Session
		if sess.IsAuthenticated() {
			target := returnURL
			if target == "" {
				target = s.console.Guard.LandingRoute(sess.CurrentIdentity())
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusOK, LoginPageData{
			View:          "login",
			ReturnURL:     returnURL,
			Notifications: s.console.Notifications.Drain(),
		})
	}
}

// LoginSubmissionHandler signs in and continues to the returnUrl the login
// page was opened with, or to the landing page for the user's role.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseLoginRequest(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, string(resilience.KindValidationFailed), "The login request could not be read.")
			return
		}

		id, err := s.console.Session.Login(r.Context(), provider.Credentials{Username: req.Username, Password: req.Password})
		if err != nil {
			writeLoginError(w, err)
			return
		}

		// A redirect queued by an earlier forced logout is stale now.
		s.console.Navigator.TakePending()

		target := guard.SafeReturnURL(req.ReturnURL)
		if target == "" {
			target = s.console.Guard.LandingRoute(&id)
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = s.console.Session.Logout(r.Context())
		target, ok := s.console.Navigator.TakePending()
		if !ok {
			target = s.console.Guard.LoginRoute()
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// parseLoginRequest accepts a JSON body or a form post. The returnUrl may
// also ride on the query string.
func parseLoginRequest(r *http.Request) (loginRequest, error) {
	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return loginRequest{}, errors.Wrap(err, "[parseLoginRequest] decode body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return loginRequest{}, errors.Wrap(err, "[parseLoginRequest] parse form")
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		req.ReturnURL = r.PostForm.Get(guard.ReturnURLParam)
	}
	if strings.TrimSpace(req.ReturnURL) == "" {
		req.ReturnURL = r.URL.Query().Get(guard.ReturnURLParam)
	}
	return req, nil
}

func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, "InvalidCredentials", "Invalid username or password.")
	case errors.Is(err, apperrors.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, string(resilience.KindForbidden), "This account is not allowed to sign in.")
	default:
		writeFailure(w, err)
	}
}
