package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
)

const graphTimeFormat = "2006-01-02T15:04:05"

type graphTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID                   string     `json:"id"`
	Subject              string     `json:"subject"`
	BodyPreview          string     `json:"bodyPreview"`
	IsAllDay             bool       `json:"isAllDay"`
	IsCancelled          bool       `json:"isCancelled"`
	LastModifiedDateTime string     `json:"lastModifiedDateTime"`
	Categories           []string   `json:"categories"`
	Start                *graphTime `json:"start"`
	End                  *graphTime `json:"end"`

	Location struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
}

type graphEventList struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

func (e graphEvent) raw() backend.RawEvent {
	ev := backend.RawEvent{
		ID:          e.ID,
		Title:       e.Subject,
		Description: e.BodyPreview,
		Location:    e.Location.DisplayName,
		Start:       e.Start.raw(e.IsAllDay),
		End:         e.End.raw(e.IsAllDay),
		Updated:     e.LastModifiedDateTime,
	}
	ev.IsMedicalAppointment = slices.ContainsFunc(e.Categories, func(c string) bool {
		return strings.EqualFold(c, "Medical Appointment")
	})
	if e.IsCancelled {
		ev.Status = "cancelled"
	}
	return ev
}

// raw converts a Graph dateTimeTimeZone. All-day events carry midnight
// instants; they are reported as dates.
func (t *graphTime) raw(allDay bool) *backend.RawTime {
	if t == nil {
		return nil
	}
	if allDay && len(t.DateTime) >= len("2006-01-02") {
		return &backend.RawTime{Date: t.DateTime[:len("2006-01-02")], TimeZone: t.TimeZone}
	}
	return &backend.RawTime{DateTime: t.DateTime, TimeZone: t.TimeZone}
}

// listGraph reads calendarView, which expands recurrences within the window.
func (b *Backend) listGraph(ctx context.Context, client *http.Client, calendarID string, start, end time.Time) ([]backend.RawEvent, error) {
	endpoint := b.graphBase + "/me/calendar/calendarView"
	if calendarID != "" {
		endpoint = b.graphBase + "/me/calendars/" + url.PathEscape(calendarID) + "/calendarView"
	}

	params := url.Values{}
	params.Set("startDateTime", start.UTC().Format(graphTimeFormat))
	params.Set("endDateTime", end.UTC().Format(graphTimeFormat))
	params.Set("$top", "100")
	next := endpoint + "?" + params.Encode()

	header := http.Header{}
	header.Set("Prefer", `outlook.timezone="UTC"`)

	var out []backend.RawEvent
	for next != "" {
		var page graphEventList
		if err := getJSON(ctx, client, next, header, &page); err != nil {
			return nil, fmt.Errorf("graph calendarView: %w", err)
		}
		for _, e := range page.Value {
			out = append(out, e.raw())
		}
		next = page.NextLink
	}
	return out, nil
}

func (b *Backend) graphDefaultCalendar(ctx context.Context, client *http.Client) (string, string, error) {
	var cal struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := getJSON(ctx, client, b.graphBase+"/me/calendar", nil, &cal); err != nil {
		return "", "", err
	}
	return cal.ID, cal.Name, nil
}
