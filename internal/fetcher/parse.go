package fetcher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
)

// StatusCancelled marks a remote event that was deleted or declined.
const StatusCancelled = "cancelled"

// localDateTime is the zone-less layout Microsoft Graph uses together with
// a separate timeZone field.
const localDateTime = "2006-01-02T15:04:05.9999999"

const dateOnly = "2006-01-02"

var errMissing = errors.New("missing")

// ParseError describes why a raw record could not become an ExternalEvent.
type ParseError struct {
	RemoteID string
	Field    string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed event %q: %s: %s", e.RemoteID, e.Field, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return common.ErrMalformedEvent
}

// Parse validates raw and converts it into an ExternalEvent owned by
// integrationID. Start and end are required and end must be after start;
// every other field is optional.
func Parse(integrationID string, raw backend.RawEvent) (models.ExternalEvent, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return models.ExternalEvent{}, &ParseError{Field: "id", Reason: "missing"}
	}

	start, startAllDay, err := parseTime(raw.Start)
	if err != nil {
		return models.ExternalEvent{}, &ParseError{RemoteID: raw.ID, Field: "start", Reason: err.Error()}
	}
	end, endAllDay, err := parseTime(raw.End)
	if err != nil {
		return models.ExternalEvent{}, &ParseError{RemoteID: raw.ID, Field: "end", Reason: err.Error()}
	}
	if !end.After(start) {
		return models.ExternalEvent{}, &ParseError{RemoteID: raw.ID, Field: "end", Reason: "not after start"}
	}

	ev := models.ExternalEvent{
		RemoteID:             raw.ID,
		IntegrationID:        integrationID,
		Title:                raw.Title,
		Description:          raw.Description,
		Location:             raw.Location,
		Start:                start,
		End:                  end,
		AllDay:               startAllDay && endAllDay,
		Status:               strings.ToLower(raw.Status),
		IsMedicalAppointment: raw.IsMedicalAppointment,
	}
	if raw.Updated != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw.Updated); err == nil {
			ev.LastModified = t.UTC()
		}
	}
	return ev, nil
}

// parseTime accepts an RFC 3339 instant, a zone-less instant with a
// separate IANA zone, or an all-day date taken at UTC midnight.
func parseTime(rt *backend.RawTime) (time.Time, bool, error) {
	if rt == nil {
		return time.Time{}, false, errMissing
	}
	switch {
	case rt.DateTime != "":
		if t, err := time.Parse(time.RFC3339Nano, rt.DateTime); err == nil {
			return t.UTC(), false, nil
		}
		loc := time.UTC
		if rt.TimeZone != "" {
			l, err := time.LoadLocation(rt.TimeZone)
			if err != nil {
				return time.Time{}, false, fmt.Errorf("unknown time zone %q", rt.TimeZone)
			}
			loc = l
		}
		t, err := time.ParseInLocation(localDateTime, rt.DateTime, loc)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid dateTime %q", rt.DateTime)
		}
		return t.UTC(), false, nil
	case rt.Date != "":
		t, err := time.ParseInLocation(dateOnly, rt.Date, time.UTC)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid date %q", rt.Date)
		}
		return t, true, nil
	}
	return time.Time{}, false, errMissing
}
