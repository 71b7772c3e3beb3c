package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/calsync/internal/client/client"
	"github.com/dmitrijs2005/calsync/internal/client/config"
)

var errNotLoggedIn = errors.New("not logged in (use 'login' or set CALSYNC_SESSION_TOKEN)")

type App struct {
	config   *config.Config
	client   client.Client
	reader   *bufio.Reader
	out      io.Writer
	location *time.Location
	loggedIn bool
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewCalSyncClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	return newApp(c, apiClient, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, cl client.Client, in io.Reader, out io.Writer) *App {
	a := &App{
		config:   c,
		client:   cl,
		reader:   bufio.NewReader(in),
		out:      out,
		location: time.Local,
	}
	if c.SessionToken != "" {
		cl.SetSessionToken(c.SessionToken)
		a.loggedIn = true
	}
	return a
}

// Run executes args as a single command, or starts the REPL when args is
// empty.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.client.Close()

	if len(args) > 0 {
		_, err := dispatch(ctx, a, args[0], args[1:])
		return err
	}

	fmt.Fprintln(a.out, "calsync console (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader, a.out)
	return nil
}

func (a *App) status() string {
	if a.loggedIn {
		return a.config.ServerEndpointAddr
	}
	return "logged out"
}

func (a *App) isLoggedIn() bool { return a.loggedIn }

func (a *App) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}
