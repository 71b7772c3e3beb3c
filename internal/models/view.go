package models

// AcceptedOverlap marks an appointment/event pair the user merged: both are
// displayed and known to overlap.
type AcceptedOverlap struct {
	ConflictID    string `json:"conflictId"`
	AppointmentID string `json:"appointmentId"`
	EventKey      string `json:"eventKey"`
}

// FetchFailure reports an integration excluded from a sync pass.
type FetchFailure struct {
	IntegrationID string `json:"integrationId"`
	Reason        string `json:"reason"`
}

// CalendarView is the outcome of one sync pass over a date window.
type CalendarView struct {
	Appointments     []Appointment     `json:"appointments"`
	Events           []ExternalEvent   `json:"events"`
	Conflicts        []SyncConflict    `json:"conflicts"`
	AcceptedOverlaps []AcceptedOverlap `json:"acceptedOverlaps"`
	Failures         []FetchFailure    `json:"failures,omitempty"`
}
