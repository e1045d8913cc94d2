package session

import (
	"sync"

	"github.com/jrsteele09/go-card-console/identity"
)

// subscriber delivers snapshots in the order they were queued, on its own
// goroutine, so callbacks may call back into the Session.
type subscriber struct {
	fn     func(*identity.Identity)
	onStop func()

	mu    sync.Mutex
	queue []*identity.Identity
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newSubscriber(fn func(*identity.Identity), onStop func()) *subscriber {
	sub := &subscriber{
		fn:     fn,
		onStop: onStop,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go sub.run()
	return sub
}

func (s *subscriber) push(id *identity.Identity) {
	s.mu.Lock()
	s.queue = append(s.queue, id)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	defer func() {
		if s.onStop != nil {
			s.onStop()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(next)
		}
	}
}
