package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/calsync/internal/auth"
	"github.com/dmitrijs2005/calsync/internal/backend"
	"github.com/dmitrijs2005/calsync/internal/backend/portal"
	"github.com/dmitrijs2005/calsync/internal/backend/provider"
	"github.com/dmitrijs2005/calsync/internal/config"
	"github.com/dmitrijs2005/calsync/internal/cryptox"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/registry"
	"golang.org/x/oauth2"
)

// stateValidity bounds how long an OAuth state token minted in direct mode
// is accepted.
const stateValidity = 5 * time.Minute

// backends holds the port implementations selected by the backend mode.
// admin and reporter stay nil in direct mode.
type backends struct {
	authorizer   backend.Authorizer
	refresher    backend.Refresher
	events       backend.EventSource
	appointments backend.AppointmentSource
	admin        backend.IntegrationAdmin
	reporter     backend.ConflictReporter
}

type noAppointments struct{}

func (noAppointments) ListAppointments(context.Context, string, time.Time, time.Time) ([]models.Appointment, error) {
	return nil, nil
}

func httpClient(c *config.Config) *http.Client {
	return &http.Client{Timeout: c.HTTPTimeout}
}

// newPortalClient returns nil when no portal is configured.
func newPortalClient(c *config.Config) (*portal.Client, error) {
	if c.PortalBaseURL == "" {
		return nil, nil
	}
	pc, err := portal.New(c.PortalBaseURL, c.PortalServiceToken, httpClient(c))
	if err != nil {
		return nil, fmt.Errorf("portal init error: %w", err)
	}
	return pc, nil
}

func registryOptions(c *config.Config, pc *portal.Client) ([]registry.Option, error) {
	switch c.BackendMode {
	case config.ModePortal:
		if pc == nil {
			return nil, fmt.Errorf("portal mode requires a portal base url")
		}
		return []registry.Option{registry.WithAdmin(pc)}, nil
	case config.ModeDirect:
		sealer, err := cryptox.NewSealer(c.CredentialKey)
		if err != nil {
			return nil, fmt.Errorf("sealer init error: %w", err)
		}
		return []registry.Option{registry.WithSealer(sealer)}, nil
	default:
		return nil, fmt.Errorf("unknown backend mode %q", c.BackendMode)
	}
}

func newBackends(c *config.Config, pc *portal.Client, reg *registry.Registry) (backends, error) {
	var b backends
	if pc != nil {
		b.appointments = pc
	}

	switch c.BackendMode {
	case config.ModePortal:
		if pc == nil {
			return b, fmt.Errorf("portal mode requires a portal base url")
		}
		b.authorizer, b.refresher, b.events = pc, pc, pc
		b.admin, b.reporter = pc, pc
	case config.ModeDirect:
		p := provider.New(providerConfigs(c), auth.NewStateCodec([]byte(c.SecretKey), stateValidity), reg,
			provider.WithHTTPClient(httpClient(c)),
		)
		b.authorizer, b.refresher, b.events = p, p, p
	default:
		return b, fmt.Errorf("unknown backend mode %q", c.BackendMode)
	}
	return b, nil
}

// providerConfigs returns the OAuth clients of every provider with a
// client id configured.
func providerConfigs(c *config.Config) map[models.Provider]*oauth2.Config {
	redirect := strings.TrimRight(c.CallbackBaseURL, "/") + "/oauth/callback"

	configs := map[models.Provider]*oauth2.Config{}
	if c.GoogleClientID != "" {
		configs[models.ProviderGoogle] = provider.GoogleConfig(c.GoogleClientID, c.GoogleClientSecret, redirect)
	}
	if c.MicrosoftClientID != "" {
		configs[models.ProviderMicrosoft] = provider.MicrosoftConfig(c.MicrosoftClientID, c.MicrosoftClientSecret, c.MicrosoftTenant, redirect)
	}
	return configs
}
