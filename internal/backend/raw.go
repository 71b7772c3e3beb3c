package backend

// RawTime is a remote timestamp: either an RFC 3339 instant or an all-day
// calendar date.
type RawTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// RawEvent is an unvalidated remote event record as returned by an event
// source. It becomes a models.ExternalEvent only through fetcher.Parse.
type RawEvent struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Description          string   `json:"description,omitempty"`
	Location             string   `json:"location,omitempty"`
	Start                *RawTime `json:"start,omitempty"`
	End                  *RawTime `json:"end,omitempty"`
	IsMedicalAppointment bool     `json:"isMedicalAppointment,omitempty"`
	Status               string   `json:"status,omitempty"`
	Updated              string   `json:"updated,omitempty"`
}
