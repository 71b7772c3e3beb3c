package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/calsync/internal/flagx"
	"github.com/dmitrijs2005/calsync/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "5m" and integer nanoseconds are accepted.
// Absent keys keep the value the Config already holds.
type JsonConfig struct {
	EndpointAddrGRPC      *string         `json:"endpoint_addr_grpc"`
	CallbackAddr          *string         `json:"callback_addr"`
	CallbackBaseURL       *string         `json:"callback_base_url"`
	DatabaseDSN           *string         `json:"database_dsn"`
	SecretKey             *string         `json:"secret_key"`
	CredentialKey         *string         `json:"credential_key"`
	BackendMode           *string         `json:"backend_mode"`
	PortalBaseURL         *string         `json:"portal_base_url"`
	PortalServiceToken    *string         `json:"portal_service_token"`
	GoogleClientID        *string         `json:"google_client_id"`
	GoogleClientSecret    *string         `json:"google_client_secret"`
	MicrosoftClientID     *string         `json:"microsoft_client_id"`
	MicrosoftClientSecret *string         `json:"microsoft_client_secret"`
	MicrosoftTenant       *string         `json:"microsoft_tenant"`
	RefreshLookahead      *timex.Duration `json:"refresh_lookahead"`
	AuthorizationTimeout  *timex.Duration `json:"authorization_timeout"`
	RefreshTickInterval   *timex.Duration `json:"refresh_tick_interval"`
	HTTPTimeout           *timex.Duration `json:"http_timeout"`
	FetchConcurrency      *int            `json:"fetch_concurrency"`
	ArchiveEnabled        *bool           `json:"archive_enabled"`
	S3RootUser            *string         `json:"s3_root_user"`
	S3RootPassword        *string         `json:"s3_root_password"`
	S3Bucket              *string         `json:"s3_bucket"`
	S3Region              *string         `json:"s3_region"`
	S3BaseEndpoint        *string         `json:"s3_base_endpoint"`
	OTLPEndpoint          *string         `json:"otlp_endpoint"`
	LogLevel              *string         `json:"log_level"`
	LogFormat             *string         `json:"log_format"`
}

// parseJson loads the file named by -c/-config (if any) and copies every
// present key into config.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.CallbackAddr, c.CallbackAddr)
	setString(&config.CallbackBaseURL, c.CallbackBaseURL)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.CredentialKey, c.CredentialKey)
	setString(&config.BackendMode, c.BackendMode)
	setString(&config.PortalBaseURL, c.PortalBaseURL)
	setString(&config.PortalServiceToken, c.PortalServiceToken)
	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.GoogleClientSecret, c.GoogleClientSecret)
	setString(&config.MicrosoftClientID, c.MicrosoftClientID)
	setString(&config.MicrosoftClientSecret, c.MicrosoftClientSecret)
	setString(&config.MicrosoftTenant, c.MicrosoftTenant)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.OTLPEndpoint, c.OTLPEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	if c.RefreshLookahead != nil {
		config.RefreshLookahead = c.RefreshLookahead.Duration
	}
	if c.AuthorizationTimeout != nil {
		config.AuthorizationTimeout = c.AuthorizationTimeout.Duration
	}
	if c.RefreshTickInterval != nil {
		config.RefreshTickInterval = c.RefreshTickInterval.Duration
	}
	if c.HTTPTimeout != nil {
		config.HTTPTimeout = c.HTTPTimeout.Duration
	}
	if c.FetchConcurrency != nil {
		config.FetchConcurrency = *c.FetchConcurrency
	}
	if c.ArchiveEnabled != nil {
		config.ArchiveEnabled = *c.ArchiveEnabled
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
