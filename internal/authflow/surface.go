package authflow

import "context"

// Window is a separate browsing context showing the provider's consent
// page. It reports back through Messages until it is closed.
type Window interface {
	// Navigate points the window at the authorization URL. State lets the
	// window route the provider's redirect back to this flow.
	Navigate(url, state string) error
	Messages() <-chan Message
	// Closed is closed when the user dismisses the window.
	Closed() <-chan struct{}
	// Close tears the window down; it is safe to call more than once.
	Close()
}

// Surface opens authorization windows. Open fails with
// common.ErrSurfaceBlocked when no window can be shown.
type Surface interface {
	Open(ctx context.Context, userID string) (Window, error)
}
