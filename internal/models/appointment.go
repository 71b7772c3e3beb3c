package models

import "time"

// Appointment is the portal's internal appointment, consumed read-only as
// comparison input for conflict detection.
type Appointment struct {
	ID          string        `json:"id"`
	PatientName string        `json:"patientName"`
	ProviderID  string        `json:"providerId"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Status      string        `json:"status"`
	Type        string        `json:"type"`
	Duration    time.Duration `json:"duration"`
}

// Interval returns the half-open interval [Start, Start+Duration).
// A missing duration falls back to the recorded end.
func (a *Appointment) Interval() (time.Time, time.Time) {
	if a.Duration > 0 {
		return a.Start, a.Start.Add(a.Duration)
	}
	return a.Start, a.End
}
