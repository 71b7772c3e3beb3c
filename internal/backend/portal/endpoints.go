package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
)

type authorizeRequest struct {
	Provider models.Provider `json:"provider"`
	UserID   string          `json:"userId"`
}

type authorizeResponse struct {
	AuthorizationEndpoint string `json:"authorizationEndpoint"`
}

// BeginAuthorization asks the portal for an authorization URL. The state
// token is the one the portal embedded in that URL.
func (c *Client) BeginAuthorization(ctx context.Context, userID string, provider models.Provider) (backend.AuthorizationStart, error) {
	var resp authorizeResponse
	if err := c.do(ctx, http.MethodPost, "/authorize", nil, authorizeRequest{Provider: provider, UserID: userID}, &resp); err != nil {
		return backend.AuthorizationStart{}, err
	}
	u, err := url.Parse(resp.AuthorizationEndpoint)
	if err != nil || resp.AuthorizationEndpoint == "" {
		return backend.AuthorizationStart{}, fmt.Errorf("portal returned invalid authorization endpoint %q", resp.AuthorizationEndpoint)
	}
	state := u.Query().Get("state")
	if state == "" {
		return backend.AuthorizationStart{}, fmt.Errorf("authorization endpoint carries no state")
	}
	return backend.AuthorizationStart{URL: resp.AuthorizationEndpoint, State: state}, nil
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (c *Client) Exchange(ctx context.Context, userID, code, state string) (*models.Integration, error) {
	var in models.Integration
	if err := c.do(ctx, http.MethodPost, "/oauth/callback", nil, callbackRequest{Code: code, State: state}, &in); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		in.UserID = userID
	}
	return &in, nil
}

func (c *Client) Refresh(ctx context.Context, in models.Integration) (*models.Integration, error) {
	var out models.Integration
	if err := c.do(ctx, http.MethodPost, "/integrations/"+url.PathEscape(in.ID)+"/refresh", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListEvents(ctx context.Context, in models.Integration, start, end time.Time) ([]backend.RawEvent, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	var out []backend.RawEvent
	if err := c.do(ctx, http.MethodGet, "/integrations/"+url.PathEscape(in.ID)+"/events", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// appointment is the portal wire shape; duration is in minutes.
type appointment struct {
	ID          string    `json:"id"`
	PatientName string    `json:"patientName"`
	ProviderID  string    `json:"providerId"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Status      string    `json:"status"`
	Type        string    `json:"type"`
	Duration    int       `json:"duration"`
}

func (c *Client) ListAppointments(ctx context.Context, userID string, start, end time.Time) ([]models.Appointment, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	if userID != "" {
		q.Set("providerId", userID)
	}

	var wire []appointment
	if err := c.do(ctx, http.MethodGet, "/appointments", q, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]models.Appointment, 0, len(wire))
	for _, a := range wire {
		out = append(out, models.Appointment{
			ID:          a.ID,
			PatientName: a.PatientName,
			ProviderID:  a.ProviderID,
			Start:       a.Start,
			End:         a.End,
			Status:      a.Status,
			Type:        a.Type,
			Duration:    time.Duration(a.Duration) * time.Minute,
		})
	}
	return out, nil
}

func (c *Client) ListIntegrations(ctx context.Context, userID string) ([]models.Integration, error) {
	var q url.Values
	if userID != "" {
		q = url.Values{"userId": {userID}}
	}
	var out []models.Integration
	if err := c.do(ctx, http.MethodGet, "/integrations", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PatchIntegration(ctx context.Context, id string, patch backend.IntegrationPatch) (*models.Integration, error) {
	var out models.Integration
	if err := c.do(ctx, http.MethodPatch, "/integrations/"+url.PathEscape(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteIntegration(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/integrations/"+url.PathEscape(id), nil, nil, nil)
}

type resolveRequest struct {
	Resolution models.ResolutionAction `json:"resolution"`
}

func (c *Client) ReportResolution(ctx context.Context, conflictID string, action models.ResolutionAction) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidResolution, action)
	}
	return c.do(ctx, http.MethodPost, "/conflicts/"+url.PathEscape(conflictID)+"/resolve", nil, resolveRequest{Resolution: action}, nil)
}
