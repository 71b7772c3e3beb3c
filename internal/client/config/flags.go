package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/calsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags. Only
// the flags known here are parsed so subcommand arguments pass through.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-r", "-w"})

	fs := flag.NewFlagSet("calsyncctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access the daemon")
	fs.DurationVar(&cfg.RequestTimeout, "r", cfg.RequestTimeout, "request timeout")
	fs.DurationVar(&cfg.AuthorizationWait, "w", cfg.AuthorizationWait, "authorization wait")

	return fs.Parse(args)
}
