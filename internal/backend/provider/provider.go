// Package provider talks to Google Calendar and Microsoft Graph directly.
// It is used when the engine itself owns OAuth credentials; they are
// sealed at rest by the registry and read back through CredentialSource.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/calsync/internal/auth"
	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleAPIBase = "https://www.googleapis.com/calendar/v3"
	graphAPIBase  = "https://graph.microsoft.com/v1.0"
)

// CredentialSource returns the unsealed credentials of an integration.
type CredentialSource interface {
	Credentials(ctx context.Context, integrationID string) (models.Credentials, error)
}

// GoogleConfig builds the OAuth client configuration for Google Calendar.
func GoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
	}
}

// MicrosoftConfig builds the OAuth client configuration for Microsoft Graph.
func MicrosoftConfig(clientID, clientSecret, tenant, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.AzureAD(tenant),
		Scopes:       []string{"offline_access", "Calendars.Read"},
	}
}

// Backend implements the authorization, refresh and event ports against
// the providers' public APIs.
type Backend struct {
	configs map[models.Provider]*oauth2.Config
	states  *auth.StateCodec
	creds   CredentialSource
	http    *http.Client

	googleBase string
	graphBase  string
	now        func() time.Time
}

var (
	_ backend.Authorizer  = (*Backend)(nil)
	_ backend.Refresher   = (*Backend)(nil)
	_ backend.EventSource = (*Backend)(nil)
)

// Option customizes a Backend.
type Option func(*Backend)

// WithHTTPClient sets the client used for token and API calls.
func WithHTTPClient(c *http.Client) Option { return func(b *Backend) { b.http = c } }

// WithAPIBases overrides the Google Calendar and Graph API roots.
func WithAPIBases(google, graph string) Option {
	return func(b *Backend) {
		b.googleBase = google
		b.graphBase = graph
	}
}

// WithNow sets the time source.
func WithNow(now func() time.Time) Option { return func(b *Backend) { b.now = now } }

func New(configs map[models.Provider]*oauth2.Config, states *auth.StateCodec, creds CredentialSource, opts ...Option) *Backend {
	b := &Backend{
		configs:    configs,
		states:     states,
		creds:      creds,
		http:       &http.Client{Timeout: 15 * time.Second},
		googleBase: googleAPIBase,
		graphBase:  graphAPIBase,
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backend) config(p models.Provider) (*oauth2.Config, error) {
	cfg, ok := b.configs[p]
	if !ok || cfg == nil {
		return nil, fmt.Errorf("%w: provider %q is not configured", common.ErrInvalidIntegration, p)
	}
	return cfg, nil
}

func (b *Backend) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.http)
}

// BeginAuthorization mints a state token and builds the consent URL with
// offline access so the provider issues a refresh token.
func (b *Backend) BeginAuthorization(ctx context.Context, userID string, provider models.Provider) (backend.AuthorizationStart, error) {
	cfg, err := b.config(provider)
	if err != nil {
		return backend.AuthorizationStart{}, err
	}
	state, err := b.states.Issue(userID, provider)
	if err != nil {
		return backend.AuthorizationStart{}, fmt.Errorf("issue state: %w", err)
	}
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if provider == models.ProviderGoogle {
		opts = append(opts, oauth2.ApprovalForce)
	}
	return backend.AuthorizationStart{URL: cfg.AuthCodeURL(state, opts...), State: state}, nil
}

// Exchange verifies state, trades code for tokens and returns a new active
// integration carrying the credentials.
func (b *Backend) Exchange(ctx context.Context, userID, code, state string) (*models.Integration, error) {
	claims, err := b.states.Verify(state)
	if err != nil {
		return nil, err
	}
	if claims.UserID != userID {
		return nil, fmt.Errorf("%w: state issued to another user", common.ErrStateMismatch)
	}
	cfg, err := b.config(claims.Provider)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(b.oauthContext(ctx), code)
	if err != nil {
		return nil, classifyTokenError("exchange code", err)
	}

	now := b.now()
	in := &models.Integration{
		ID:          uuid.NewString(),
		UserID:      userID,
		Provider:    claims.Provider,
		Status:      models.StatusActive,
		SyncEnabled: true,
		CreatedAt:   now,
		UpdatedAt:   now,
		Credentials: models.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken},
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(time.Hour)
	}
	in.ExpiresAt = &expiry

	in.CalendarID, in.CalendarName = b.primaryCalendar(ctx, claims.Provider, tok)
	return in, nil
}

// Refresh forces a token refresh for the stored refresh token.
func (b *Backend) Refresh(ctx context.Context, in models.Integration) (*models.Integration, error) {
	cfg, err := b.config(in.Provider)
	if err != nil {
		return nil, err
	}
	creds, err := b.creds.Credentials(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored", common.ErrInvalidGrant)
	}

	// An expired token makes the source go to the token endpoint.
	stale := &oauth2.Token{RefreshToken: creds.RefreshToken, Expiry: time.Unix(1, 0)}
	tok, err := cfg.TokenSource(b.oauthContext(ctx), stale).Token()
	if err != nil {
		return nil, classifyTokenError("refresh token", err)
	}

	out := in
	out.Credentials = models.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if out.Credentials.RefreshToken == "" {
		out.Credentials.RefreshToken = creds.RefreshToken
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = b.now().Add(time.Hour)
	}
	out.ExpiresAt = &expiry
	out.UpdatedAt = b.now()
	return &out, nil
}

// classifyTokenError separates a rejected grant from retryable failures.
func classifyTokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: %s: %s", common.ErrInvalidGrant, op, re.ErrorDescription)
		}
		if re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", common.ErrTransient, op, err)
}

// apiClient returns an HTTP client that presents tok without refreshing it.
func (b *Backend) apiClient(ctx context.Context, tok *oauth2.Token) *http.Client {
	return oauth2.NewClient(b.oauthContext(ctx), oauth2.StaticTokenSource(tok))
}

// ListEvents lists provider events overlapping [start, end).
func (b *Backend) ListEvents(ctx context.Context, in models.Integration, start, end time.Time) ([]backend.RawEvent, error) {
	creds, err := b.creds.Credentials(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	tok := &oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"}
	client := b.apiClient(ctx, tok)

	switch in.Provider {
	case models.ProviderGoogle:
		return b.listGoogle(ctx, client, in.CalendarID, start, end)
	case models.ProviderMicrosoft:
		return b.listGraph(ctx, client, in.CalendarID, start, end)
	default:
		return nil, fmt.Errorf("%w: provider %q is not supported", common.ErrInvalidIntegration, in.Provider)
	}
}

func (b *Backend) primaryCalendar(ctx context.Context, p models.Provider, tok *oauth2.Token) (string, string) {
	client := b.apiClient(ctx, tok)
	switch p {
	case models.ProviderGoogle:
		if name, err := b.googleCalendarName(ctx, client); err == nil {
			return "primary", name
		}
		return "primary", "Google Calendar"
	case models.ProviderMicrosoft:
		if id, name, err := b.graphDefaultCalendar(ctx, client); err == nil {
			return id, name
		}
		return "", "Outlook Calendar"
	}
	return "", string(p)
}
