// Package common defines shared constants and sentinel errors used across
// calsync components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Credential lifecycle errors.
	ErrInvalidGrant        = errors.New("refresh token rejected by remote")
	ErrTransient           = errors.New("transient remote failure")
	ErrIntegrationInactive = errors.New("integration is not active")

	// Registry errors.
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidIntegration = errors.New("invalid integration")

	// Fetch errors.
	ErrInvalidWindow  = errors.New("invalid date window")
	ErrMalformedEvent = errors.New("malformed external event")

	// Authorization flow errors.
	ErrSurfaceBlocked         = errors.New("authorization surface blocked")
	ErrFlowInProgress         = errors.New("authorization flow already in progress")
	ErrAuthorizationDenied    = errors.New("authorization denied")
	ErrAuthorizationCancelled = errors.New("authorization cancelled")
	ErrAuthorizationTimeout   = errors.New("authorization timed out")
	ErrStateMismatch          = errors.New("authorization state mismatch")

	// Conflict resolution errors.
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")
	ErrInvalidResolution       = errors.New("invalid resolution action")
)
