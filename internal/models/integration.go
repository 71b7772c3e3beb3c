// Package models defines the domain types shared by the synchronization
// engine: integrations, external events, appointments and sync conflicts.
package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/calsync/internal/common"
)

// Provider tags the external calendar system behind an integration.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
)

// Status is the lifecycle state of an integration.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether an integration may move from s to next.
// Any status may become inactive; pending becomes active or error on the
// outcome of authorization; active and error flip on refresh outcome;
// inactive integrations come back only through re-authorization.
func (s Status) CanTransition(next Status) bool {
	if s == next || next == StatusInactive {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusError
	case StatusActive:
		return next == StatusError
	case StatusError:
		return next == StatusActive
	case StatusInactive:
		return next == StatusActive
	}
	return false
}

// Credentials are the OAuth secrets of an integration. They never leave the
// boundary that owns them; see Integration.Redacted.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether no secret is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Integration links one staff account to one external calendar.
type Integration struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Provider     Provider   `json:"provider"`
	CalendarID   string     `json:"calendarId"`
	CalendarName string     `json:"calendarName"`
	Status       Status     `json:"status"`
	SyncEnabled  bool       `json:"syncEnabled"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Credentials Credentials `json:"-"`
}

// Redacted returns a copy safe to hand to UI-facing code.
func (i Integration) Redacted() Integration {
	i.Credentials = Credentials{}
	return i
}

// Schedulable reports whether the integration takes part in refresh
// scheduling and sync cycles.
func (i *Integration) Schedulable() bool {
	return i.Status == StatusActive && i.SyncEnabled
}

// Validate checks field-level invariants.
func (i *Integration) Validate() error {
	if i.ID == "" || i.UserID == "" {
		return fmt.Errorf("%w: id and user id are required", common.ErrInvalidIntegration)
	}
	if i.Provider == "" {
		return fmt.Errorf("%w: provider is required", common.ErrInvalidIntegration)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", common.ErrInvalidIntegration, i.Status)
	}
	if i.Status == StatusActive && i.SyncEnabled && i.ExpiresAt == nil {
		return fmt.Errorf("%w: active integration without credential expiry", common.ErrInvalidIntegration)
	}
	return nil
}
