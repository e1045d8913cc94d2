package server

import (
	"net/http"
	"sync"

	"github.com/jrsteele09/go-card-console/guard"
)

var _ guard.Navigator = (*Navigator)(nil)

// Navigator is the console's navigation state. Navigations requested by the
// auth core are held as pending and applied to the next page request.
type Navigator struct {
	mu      sync.Mutex
	current string
	pending string
}

func NewNavigator(start string) *Navigator {
	return &Navigator{current: start}
}

func (n *Navigator) CurrentURL() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *Navigator) Navigate(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = url
	n.pending = url
}

// Visit records a page the user actually reached.
func (n *Navigator) Visit(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = url
}

// TakePending returns and forgets the pending navigation.
func (n *Navigator) TakePending() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	url := n.pending
	n.pending = ""
	return url, url != ""
}

// NavigationMiddleware applies a pending navigation before serving the page.
func (s *Server) NavigationMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if target, ok := s.console.Navigator.TakePending(); ok && target != r.URL.RequestURI() {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// TrackVisit records the page once the guard let the request through, so
// the return target after a forced logout is always a page the user could see.
func (s *Server) TrackVisit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.console.Navigator.Visit(r.URL.RequestURI())
		next(w, r)
	}
}
