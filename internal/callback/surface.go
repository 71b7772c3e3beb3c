package callback

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/calsync/internal/authflow"
	"github.com/dmitrijs2005/calsync/internal/common"
)

// window is an authorization window whose answers arrive as HTTP requests
// routed by the OAuth state.
type window struct {
	s        *Server
	userID   string
	messages chan authflow.Message
	closed   chan struct{}

	mu      sync.Mutex
	state   string
	dismiss sync.Once
	release sync.Once
}

var _ authflow.Surface = (*Server)(nil)

// Open reserves a window for userID. It fails with common.ErrSurfaceBlocked
// once the server is shut down or too many windows are open.
func (s *Server) Open(_ context.Context, userID string) (authflow.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil, fmt.Errorf("%w: callback server is shut down", common.ErrSurfaceBlocked)
	}
	if s.open >= s.maxOpen {
		return nil, fmt.Errorf("%w: %d authorization windows already open", common.ErrSurfaceBlocked, s.open)
	}
	s.open++
	return &window{
		s:        s,
		userID:   userID,
		messages: make(chan authflow.Message, 4),
		closed:   make(chan struct{}),
	}, nil
}

func (w *window) Navigate(_, state string) error {
	if state == "" {
		return fmt.Errorf("authorization state is empty")
	}
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()

	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if _, taken := w.s.byState[state]; taken {
		return fmt.Errorf("authorization state already in use")
	}
	w.s.byState[state] = w
	return nil
}

func (w *window) Messages() <-chan authflow.Message { return w.messages }

func (w *window) Closed() <-chan struct{} { return w.closed }

func (w *window) Close() {
	w.release.Do(func() {
		w.mu.Lock()
		state := w.state
		w.mu.Unlock()

		w.s.mu.Lock()
		defer w.s.mu.Unlock()
		if w.s.byState[state] == w {
			delete(w.s.byState, state)
		}
		w.s.open--
	})
}

// deliver hands msg to the flow without blocking the HTTP handler.
func (w *window) deliver(msg authflow.Message) bool {
	select {
	case w.messages <- msg:
		return true
	default:
		return false
	}
}

// userClosed reports that the user dismissed the window.
func (w *window) userClosed() {
	w.dismiss.Do(func() { close(w.closed) })
}

func (s *Server) lookup(state string) (*window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byState[state]
	return w, ok
}
