package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Notification is a user visible message produced by a failed request.
type Notification struct {
	Kind    Kind                `json:"kind"`
	Status  int                 `json:"status,omitempty"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LoadingTracker shows a request scoped loading indicator. The returned done
// func is wrapped by the client so it runs exactly once.
type LoadingTracker interface {
	Begin() (done func())
}

// AuthFailureHandler clears the session when the server rejects the token.
// rejected is the access token the failed request carried, empty if it went
// out without one. It returns false when that request belonged to a session
// that is already gone or replaced; no login navigation follows then.
type AuthFailureHandler interface {
	ForceLogout(ctx context.Context, rejected string) bool
}

// LoadingCounter is a LoadingTracker counting in-flight requests.
type LoadingCounter struct {
	active atomic.Int64
	total  atomic.Int64
}

func (l *LoadingCounter) Begin() func() {
	l.active.Add(1)
	l.total.Add(1)
	return func() { l.active.Add(-1) }
}

// Active is the number of indicators currently shown.
func (l *LoadingCounter) Active() int64 { return l.active.Load() }

// Total is the number of indicators ever started.
func (l *LoadingCounter) Total() int64 { return l.total.Load() }

// NotificationLog is a Notifier keeping every message, newest last.
type NotificationLog struct {
	mu    sync.Mutex
	items []Notification
}

func (n *NotificationLog) Notify(item Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
}

func (n *NotificationLog) All() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.items...)
}

// Drain returns and forgets all messages.
func (n *NotificationLog) Drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	items := n.items
	n.items = nil
	return items
}

// RequestState tracks one request: Pending -> {Succeeded | Retrying -> Pending | Failed}.
type RequestState string

const (
	StatePending   RequestState = "pending"
	StateRetrying  RequestState = "retrying"
	StateSucceeded RequestState = "succeeded"
	StateFailed    RequestState = "failed"
)

// Transition is reported to the transition hook on every state change.
type Transition struct {
	RequestID string
	Method    string
	URL       string
	Attempt   int // 0 based
	State     RequestState
	Status    int
	Delay     time.Duration // before the next attempt, Retrying only
	Kind      Kind          // Failed only
}
