package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/calsync/internal/clock"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
)

// State is the position of a flow in its state machine.
type State int

const (
	StateIdle State = iota
	StateAwaitingConsent
	StateExchangingCode
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConsent:
		return "awaiting_consent"
	case StateExchangingCode:
		return "exchanging_code"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Flow is one interactive authorization. It ends exactly once, in
// StateActive with the new integration or in StateFailed with an error.
type Flow struct {
	id       string
	userID   string
	provider models.Provider
	url      string
	expected string

	c      *Coordinator
	window Window
	timer  clock.Timer

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan error

	mu          sync.Mutex
	state       State
	integration models.Integration
	err         error
	done        chan struct{}
}

func (f *Flow) ID() string { return f.id }

func (f *Flow) UserID() string { return f.userID }

// URL is the authorization URL shown to the user.
func (f *Flow) URL() string { return f.url }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done is closed when the flow has ended.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Wait blocks until the flow ends or ctx is done. Giving up on ctx does
// not cancel the flow.
func (f *Flow) Wait(ctx context.Context) (models.Integration, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return models.Integration{}, ctx.Err()
	}
}

// Result returns the outcome of an ended flow.
func (f *Flow) Result() (models.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.integration, f.err
}

// Cancel ends the flow with common.ErrAuthorizationCancelled unless it has
// already ended.
func (f *Flow) Cancel() {
	f.abort(common.ErrAuthorizationCancelled)
}

func (f *Flow) abort(err error) {
	select {
	case f.stop <- err:
	default:
	}
	f.cancel()
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	f.c.logger.Debug(f.ctx, "authorization flow state", "flow_id", f.id, "from", prev, "to", s)
}

// run consumes window messages until the flow reaches a terminal state.
func (f *Flow) run() {
	for {
		select {
		case err := <-f.stop:
			f.finish(models.Integration{}, err)
			return
		case <-f.window.Closed():
			f.finish(models.Integration{}, common.ErrAuthorizationCancelled)
			return
		case msg, ok := <-f.window.Messages():
			if !ok {
				f.finish(models.Integration{}, common.ErrAuthorizationCancelled)
				return
			}
			if f.handle(msg) {
				return
			}
		}
	}
}

// handle processes one message and reports whether the flow ended.
func (f *Flow) handle(msg Message) bool {
	switch msg.Kind {
	case MessageRefreshHint:
		if f.c.onHint != nil {
			f.c.onHint(f.ctx, f.userID)
		}
		return false
	case MessageError:
		if msg.State != "" && msg.State != f.expected {
			f.c.logger.Warn(f.ctx, "ignoring message with foreign state", "flow_id", f.id, "kind", msg.Kind)
			return false
		}
		reason := msg.Error
		if reason == "" {
			reason = "authorization failed"
		}
		f.finish(models.Integration{}, fmt.Errorf("%w: %s", common.ErrAuthorizationDenied, reason))
		return true
	case MessageSuccess:
		if msg.State != f.expected {
			f.c.logger.Warn(f.ctx, "ignoring message with foreign state", "flow_id", f.id, "kind", msg.Kind)
			return false
		}
		in, err := f.complete(msg)
		f.finish(in, err)
		return true
	}
	f.c.logger.Warn(f.ctx, "ignoring unknown message", "flow_id", f.id, "kind", msg.Kind)
	return false
}

// complete exchanges the code and registers the integration.
func (f *Flow) complete(msg Message) (models.Integration, error) {
	f.setState(StateExchangingCode)

	in, err := f.obtain(msg)
	if err != nil {
		if cause := f.stopCause(); cause != nil {
			return models.Integration{}, cause
		}
		return models.Integration{}, err
	}
	if cause := f.stopCause(); cause != nil {
		return models.Integration{}, cause
	}
	if err := f.checkOwner(in.ID); err != nil {
		return models.Integration{}, err
	}

	in.UserID = f.userID
	if in.Provider == "" {
		in.Provider = f.provider
	}
	in.Status = models.StatusActive
	saved, err := f.c.registry.Upsert(f.ctx, *in)
	if err != nil {
		return models.Integration{}, fmt.Errorf("register integration: %w", err)
	}
	if f.c.tokens != nil {
		f.c.tokens.ScheduleAutoRefresh(saved)
	}
	return saved, nil
}

// obtain returns the integration carried by msg when registered payloads
// are accepted, and otherwise exchanges the code.
func (f *Flow) obtain(msg Message) (*models.Integration, error) {
	if msg.Integration != nil {
		if f.c.registered {
			in := *msg.Integration
			return &in, nil
		}
		f.c.logger.Warn(f.ctx, "ignoring integration payload, exchanging code", "flow_id", f.id)
	}
	if msg.Code == "" {
		return nil, fmt.Errorf("%w: no authorization code", common.ErrAuthorizationDenied)
	}
	in, err := f.c.authorizer.Exchange(f.ctx, f.userID, msg.Code, msg.State)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return in, nil
}

// checkOwner refuses to register over an integration of another user.
func (f *Flow) checkOwner(id string) error {
	if id == "" {
		return nil
	}
	cur, err := f.c.registry.Get(f.ctx, id)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("look up integration %s: %w", id, err)
	case cur.UserID != f.userID:
		f.c.logger.Warn(f.ctx, "authorization targets a foreign integration", "flow_id", f.id, "integration_id", id)
		return fmt.Errorf("integration %s: %w", id, common.ErrorForbidden)
	}
	return nil
}

// stopCause returns the pending cancel or timeout error, if any.
func (f *Flow) stopCause() error {
	select {
	case err := <-f.stop:
		return err
	default:
		return nil
	}
}

func (f *Flow) finish(in models.Integration, err error) {
	f.timer.Stop()
	f.window.Close()
	f.cancel()

	f.mu.Lock()
	f.integration, f.err = in, err
	if err != nil {
		f.state = StateFailed
	} else {
		f.state = StateActive
	}
	f.mu.Unlock()

	f.c.release(f)
	close(f.done)

	if err != nil {
		f.c.logger.Info(context.WithoutCancel(f.ctx), "authorization failed", "flow_id", f.id, "user_id", f.userID, "error", err)
		return
	}
	f.c.logger.Info(context.WithoutCancel(f.ctx), "authorization succeeded", "flow_id", f.id, "user_id", f.userID, "integration_id", in.ID)
}
