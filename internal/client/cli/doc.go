// Package cli implements calsyncctl, the operator console for the calsync
// daemon.
//
// Commands run either once, straight from the command line
// (`calsyncctl sync 2026-06-01`), or interactively in a REPL when no command
// is given. Every call carries the portal session token, taken from
// CALSYNC_SESSION_TOKEN or entered at the `login` prompt without echo.
package cli
