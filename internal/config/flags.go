package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/calsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-w string     OAuth callback listen address
//	-u string     public base URL of the callback surface
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-k string     credential sealing passphrase
//	-m string     backend mode (portal|direct)
//	-p string     portal base URL
//	-t duration   refresh lookahead (e.g., "5m")
//	-o string     OTLP/HTTP trace endpoint
//	-v string     log level
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-w", "-u", "-d", "-s", "-k", "-m", "-p", "-t", "-o", "-v"})

	fs := flag.NewFlagSet("calsyncd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.CallbackAddr, "w", config.CallbackAddr, "address and port of the OAuth callback server")
	fs.StringVar(&config.CallbackBaseURL, "u", config.CallbackBaseURL, "public base URL of the OAuth callback server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.CredentialKey, "k", config.CredentialKey, "credential sealing key")
	fs.StringVar(&config.BackendMode, "m", config.BackendMode, "backend mode: portal or direct")
	fs.StringVar(&config.PortalBaseURL, "p", config.PortalBaseURL, "portal backend base URL")
	fs.DurationVar(&config.RefreshLookahead, "t", config.RefreshLookahead, "refresh lookahead")
	fs.StringVar(&config.OTLPEndpoint, "o", config.OTLPEndpoint, "OTLP trace endpoint")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	return fs.Parse(args)
}
