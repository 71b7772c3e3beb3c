// Package backend declares the ports through which the engine talks to the
// systems it synchronizes with. Package portal implements them against the
// portal's calendar API; package provider talks to Google and Microsoft
// directly.
package backend

import (
	"context"
	"time"

	"github.com/dmitrijs2005/calsync/internal/models"
)

// AuthorizationStart is the outcome of beginning an OAuth handshake.
type AuthorizationStart struct {
	URL   string
	State string
}

// Authorizer runs the server side of the OAuth handshake.
type Authorizer interface {
	BeginAuthorization(ctx context.Context, userID string, provider models.Provider) (AuthorizationStart, error)
	// Exchange trades an authorization code for a new integration. In direct
	// mode the returned record carries credentials; in portal mode it does not.
	Exchange(ctx context.Context, userID, code, state string) (*models.Integration, error)
}

// Refresher renews the credentials of an integration. Implementations
// return common.ErrInvalidGrant when the refresh token itself was rejected
// and common.ErrTransient for retryable failures.
type Refresher interface {
	Refresh(ctx context.Context, in models.Integration) (*models.Integration, error)
}

// EventSource lists raw remote events overlapping [start, end).
type EventSource interface {
	ListEvents(ctx context.Context, in models.Integration, start, end time.Time) ([]RawEvent, error)
}

// AppointmentSource lists the portal's internal appointments in [start, end).
type AppointmentSource interface {
	ListAppointments(ctx context.Context, userID string, start, end time.Time) ([]models.Appointment, error)
}

// IntegrationPatch carries the mutable integration fields; nil means unchanged.
type IntegrationPatch struct {
	SyncEnabled  *bool          `json:"syncEnabled,omitempty"`
	Status       *models.Status `json:"status,omitempty"`
	CalendarName *string        `json:"calendarName,omitempty"`
}

// IntegrationAdmin is the remote authority over integration records.
type IntegrationAdmin interface {
	ListIntegrations(ctx context.Context, userID string) ([]models.Integration, error)
	PatchIntegration(ctx context.Context, id string, patch IntegrationPatch) (*models.Integration, error)
	DeleteIntegration(ctx context.Context, id string) error
}

// ConflictReporter tells the remote system about a resolution decision.
type ConflictReporter interface {
	ReportResolution(ctx context.Context, conflictID string, action models.ResolutionAction) error
}

// Backend bundles every port; both implementations satisfy it.
type Backend interface {
	Authorizer
	Refresher
	EventSource
	AppointmentSource
	IntegrationAdmin
	ConflictReporter
}
