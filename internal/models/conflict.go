package models

import "time"

// ConflictKind classifies a detected disagreement.
type ConflictKind string

const (
	ConflictTimeOverlap       ConflictKind = "time_overlap"
	ConflictProbableDuplicate ConflictKind = "probable_duplicate"
)

// ResolutionAction is the human decision applied to a conflict.
type ResolutionAction string

const (
	KeepInternal ResolutionAction = "keep_internal"
	KeepExternal ResolutionAction = "keep_external"
	Merge        ResolutionAction = "merge"
)

// Valid reports whether a is a known action.
func (a ResolutionAction) Valid() bool {
	switch a {
	case KeepInternal, KeepExternal, Merge:
		return true
	}
	return false
}

// ConflictDetails carries both source records so a human can decide
// without another fetch.
type ConflictDetails struct {
	Appointment Appointment   `json:"appointment"`
	Event       ExternalEvent `json:"event"`
}

// Resolution records how and when a conflict was settled.
type Resolution struct {
	Action     ResolutionAction `json:"action"`
	ResolvedAt time.Time        `json:"resolvedAt"`
	ResolvedBy string           `json:"resolvedBy,omitempty"`
}

// SyncConflict is one detected disagreement between an internal
// appointment and an external event. Resolution is nil while unresolved.
type SyncConflict struct {
	ID            string          `json:"id"`
	IntegrationID string          `json:"integrationId"`
	RemoteEventID string          `json:"remoteEventId"`
	AppointmentID string          `json:"appointmentId"`
	Kind          ConflictKind    `json:"kind"`
	Fingerprint   string          `json:"fingerprint"`
	Details       ConflictDetails `json:"details"`
	DetectedAt    time.Time       `json:"detectedAt"`
	Resolution    *Resolution     `json:"resolution,omitempty"`
}

// Resolved reports whether a resolution has been recorded.
func (c *SyncConflict) Resolved() bool {
	return c.Resolution != nil
}

// ResolutionRecord is an append-only audit entry.
type ResolutionRecord struct {
	ID          string           `json:"id"`
	ConflictID  string           `json:"conflictId"`
	Action      ResolutionAction `json:"action"`
	ResolvedBy  string           `json:"resolvedBy"`
	ResolvedAt  time.Time        `json:"resolvedAt"`
	Fingerprint string           `json:"fingerprint"`
}
