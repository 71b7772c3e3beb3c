package models

import "time"

// ExternalEvent is one normalized occurrence on a remote calendar.
// It is never written back to the remote system.
type ExternalEvent struct {
	RemoteID             string    `json:"remoteId"`
	IntegrationID        string    `json:"integrationId"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	Location             string    `json:"location,omitempty"`
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	AllDay               bool      `json:"allDay,omitempty"`
	Status               string    `json:"status,omitempty"`
	IsMedicalAppointment bool      `json:"isMedicalAppointment"`
	LastModified         time.Time `json:"lastModified"`
}

// Key identifies the event across integrations.
func (e *ExternalEvent) Key() string {
	return e.IntegrationID + "/" + e.RemoteID
}
