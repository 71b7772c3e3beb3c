package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errUsage = errors.New("usage")

// execIface is the command surface the REPL drives. App implements it; tests
// use a recording stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Integrations(ctx context.Context, reload bool) error
	Connect(ctx context.Context, provider string) error
	Cancel(ctx context.Context, flowID string) error
	SetEnabled(ctx context.Context, integrationID string, enabled bool) error
	Remove(ctx context.Context, integrationID string) error
	Deactivate(ctx context.Context, integrationID string) error
	Refresh(ctx context.Context, integrationID string) error
	Sync(ctx context.Context, from, to string) error
	Resolve(ctx context.Context, action string, conflictIDs []string) error
	Audit(ctx context.Context, conflictID string) error
}

const helpLoggedOut = "Available commands: login, exit"

const helpLoggedIn = `Available commands:
  integrations [reload]               list connected calendars
  connect <google|microsoft>          authorize a new calendar (alias: authorize)
  cancel <flow-id>                    abandon an authorization
  enable <id> | disable <id>          toggle syncing
  refresh <id>                        refresh credentials now
  deactivate <id>                     stop using a calendar but keep it
  remove <id>                         disconnect a calendar
  sync <from> [to]                    show the calendar for dates (YYYY-MM-DD)
  resolve <action> <conflict-id>...   keep_internal, keep_external or merge
  audit <conflict-id>                 show past decisions on a conflict
  logout, exit`

// dispatch runs one command. quit reports that the session should end.
func dispatch(ctx context.Context, a execIface, cmd string, args []string) (quit bool, err error) {
	needArg := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%w: %s", errUsage, cmd)
		}
		return nil
	}

	switch cmd {
	case "exit", "quit":
		return true, nil
	case "login":
		return false, a.Login(ctx)
	}

	if !a.isLoggedIn() {
		return false, errNotLoggedIn
	}

	switch cmd {
	case "logout":
		return false, a.Logout(ctx)
	case "l", "list", "integrations":
		return false, a.Integrations(ctx, len(args) > 0 && args[0] == "reload")
	case "connect", "authorize":
		if err := needArg(1); err != nil {
			return false, err
		}
		return false, a.Connect(ctx, args[0])
	case "cancel":
		if err := needArg(1); err != nil {
			return false, err
		}
		return false, a.Cancel(ctx, args[0])
	case "enable", "disable":
		if err := needArg(1); err != nil {
			return false, err
		}
		return false, a.SetEnabled(ctx, args[0], cmd == "enable")
	case "remove":
		if err := needArg(1); err != nil {
			return false, err
		}
		return false, a.Remove(ctx, args[0])
	case "deactivate":
		if err := needArg(1); err != nil {
			return false, err
		}
		return false, a.Deactivate(ctx, args[0])
	case "refresh":
		if err := needArg(1); err != nil {
			return false, err
		}
		return false, a.Refresh(ctx, args[0])
	case "sync":
		if err := needArg(1); err != nil {
			return false, err
		}
		to := ""
		if len(args) > 1 {
			to = args[1]
		}
		return false, a.Sync(ctx, args[0], to)
	case "resolve":
		if err := needArg(2); err != nil {
			return false, err
		}
		return false, a.Resolve(ctx, args[0], args[1:])
	case "audit":
		if err := needArg(1); err != nil {
			return false, err
		}
		return false, a.Audit(ctx, args[0])
	default:
		return false, fmt.Errorf("unknown command: %s", cmd)
	}
}

// runREPL reads commands from reader until EOF, "exit" or "quit". Command
// errors are printed and the loop goes on. Commands may read follow-up
// answers from the same reader.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		fmt.Fprintf(out, "calsync (%s)> ", statusFn())
		line, readErr := reader.ReadString('\n')
		if readErr != nil && line == "" {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		if parts[0] == "help" {
			if a.isLoggedIn() {
				fmt.Fprintln(out, helpLoggedIn)
			} else {
				fmt.Fprintln(out, helpLoggedOut)
			}
			continue
		}

		quit, err := dispatch(ctx, a, parts[0], parts[1:])
		if err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		if quit {
			fmt.Fprintln(out, "Bye!")
			return
		}
		if readErr != nil {
			return
		}
	}
}
