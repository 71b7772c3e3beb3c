// Package config loads runtime configuration for calsyncctl.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file given with -c or -config.
//  3. CALSYNC_* environment variables.
//  4. Command-line flags.
//
// Supported flags
//
//	-a string     address:port of the daemon's gRPC endpoint
//	-r duration   per-request timeout
//	-w duration   how long `connect` waits for the authorization to finish
//
// The session token is never read from flags; set CALSYNC_SESSION_TOKEN or
// enter it at the prompt.
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "15s",
//	  "authorization_wait": "5m"
//	}
package config
