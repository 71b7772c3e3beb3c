package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/common"
)

type googleTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
	TimeZone string `json:"timeZone"`
}

type googleEvent struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Summary     string      `json:"summary"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	Updated     string      `json:"updated"`
	Start       *googleTime `json:"start"`
	End         *googleTime `json:"end"`

	ExtendedProperties struct {
		Private map[string]string `json:"private"`
	} `json:"extendedProperties"`
}

type googleEventList struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
}

func (e googleEvent) raw() backend.RawEvent {
	return backend.RawEvent{
		ID:                   e.ID,
		Title:                e.Summary,
		Description:          e.Description,
		Location:             e.Location,
		Start:                e.Start.raw(),
		End:                  e.End.raw(),
		IsMedicalAppointment: e.ExtendedProperties.Private["isMedicalAppointment"] == "true",
		Status:               e.Status,
		Updated:              e.Updated,
	}
}

func (t *googleTime) raw() *backend.RawTime {
	if t == nil {
		return nil
	}
	return &backend.RawTime{DateTime: t.DateTime, Date: t.Date, TimeZone: t.TimeZone}
}

// listGoogle pages through events.list with recurring events expanded.
func (b *Backend) listGoogle(ctx context.Context, client *http.Client, calendarID string, start, end time.Time) ([]backend.RawEvent, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	endpoint := b.googleBase + "/calendars/" + url.PathEscape(calendarID) + "/events"

	params := url.Values{}
	params.Set("timeMin", start.UTC().Format(time.RFC3339))
	params.Set("timeMax", end.UTC().Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	params.Set("maxResults", "250")

	var out []backend.RawEvent
	for {
		var page googleEventList
		if err := getJSON(ctx, client, endpoint+"?"+params.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("google events.list: %w", err)
		}
		for _, e := range page.Items {
			out = append(out, e.raw())
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		params.Set("pageToken", page.NextPageToken)
	}
}

func (b *Backend) googleCalendarName(ctx context.Context, client *http.Client) (string, error) {
	var cal struct {
		Summary string `json:"summary"`
	}
	if err := getJSON(ctx, client, b.googleBase+"/calendars/primary", nil, &cal); err != nil {
		return "", err
	}
	return cal.Summary, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, endpoint string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", common.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", common.ErrorUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", common.ErrorNotFound, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", common.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
