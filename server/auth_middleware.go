package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// RefreshExpiredSession trades the refresh token for a new pair when the
// access token lapsed but the identity is still held. If that fails the
// session is cleared and the guard sends the user to login.
func (s *Server) RefreshExpiredSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.console.Session
		if !sess.IsAuthenticated() && sess.CurrentIdentity() != nil {
			if _, err := sess.Refresh(r.Context()); err != nil {
				log.Info().Err(err).Str("path", r.URL.Path).Msg("session refresh before navigation failed")
			}
		}
		next(w, r)
	}
}
