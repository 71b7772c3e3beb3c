package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/calsync/internal/client/client"
	"github.com/dmitrijs2005/calsync/internal/models"
)

const dateLayout = "2006-01-02"

func (a *App) Login(ctx context.Context) error {
	token, err := GetSecret(a.out, "Enter session token: ")
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("empty token")
	}
	a.client.SetSessionToken(token)
	a.loggedIn = true

	if err := a.Integrations(ctx, false); err != nil {
		a.client.SetSessionToken("")
		a.loggedIn = false
		return err
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.client.SetSessionToken("")
	a.loggedIn = false
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Integrations(ctx context.Context, reload bool) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	list, err := a.client.ListIntegrations(ctx, reload)
	if err != nil {
		return err
	}
	printIntegrations(a.out, list)
	return nil
}

// Connect starts an authorization and waits for the user to finish it in
// the browser. Giving up the wait leaves the flow running on the daemon.
func (a *App) Connect(ctx context.Context, provider string) error {
	p := models.Provider(provider)
	if p != models.ProviderGoogle && p != models.ProviderMicrosoft {
		return fmt.Errorf("unknown provider %q", provider)
	}

	rctx, cancel := a.requestContext(ctx)
	flowID, url, err := a.client.BeginAuthorization(rctx, p)
	cancel()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Open this address to authorize (flow %s):\n  %s\n", flowID, url)

	wctx, cancel := context.WithTimeout(ctx, a.config.AuthorizationWait)
	defer cancel()
	in, err := a.client.AwaitAuthorization(wctx, flowID)
	if errors.Is(err, client.ErrUnavailable) && wctx.Err() != nil {
		fmt.Fprintf(a.out, "Stopped waiting; flow %s is still open on the server\n", flowID)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Connected %s calendar %q (%s)\n", in.Provider, in.CalendarName, in.ID)
	return nil
}

func (a *App) Cancel(ctx context.Context, flowID string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	if err := a.client.CancelAuthorization(ctx, flowID); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Authorization cancelled")
	return nil
}

func (a *App) SetEnabled(ctx context.Context, integrationID string, enabled bool) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	in, err := a.client.SetSyncEnabled(ctx, integrationID, enabled)
	if err != nil {
		return err
	}
	printIntegrations(a.out, []models.Integration{in})
	return nil
}

func (a *App) Remove(ctx context.Context, integrationID string) error {
	if !Confirm(a.reader, fmt.Sprintf("Disconnect %s?", integrationID), a.out) {
		fmt.Fprintln(a.out, "Aborted")
		return nil
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	if err := a.client.RemoveIntegration(ctx, integrationID); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Removed", integrationID)
	return nil
}

func (a *App) Deactivate(ctx context.Context, integrationID string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	in, err := a.client.DeactivateIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	printIntegrations(a.out, []models.Integration{in})
	return nil
}

func (a *App) Refresh(ctx context.Context, integrationID string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	in, err := a.client.RefreshIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	printIntegrations(a.out, []models.Integration{in})
	return nil
}

// Sync shows the calendar for whole local days from..to inclusive; to
// defaults to from.
func (a *App) Sync(ctx context.Context, from, to string) error {
	start, err := time.ParseInLocation(dateLayout, from, a.location)
	if err != nil {
		return fmt.Errorf("bad start date: %w", err)
	}
	last := start
	if to != "" {
		if last, err = time.ParseInLocation(dateLayout, to, a.location); err != nil {
			return fmt.Errorf("bad end date: %w", err)
		}
	}
	end := last.AddDate(0, 0, 1)

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	view, err := a.client.SyncWindow(ctx, start, end)
	if err != nil {
		return err
	}
	printView(a.out, view, a.location)
	return nil
}

func (a *App) Resolve(ctx context.Context, action string, conflictIDs []string) error {
	act := models.ResolutionAction(action)
	if !act.Valid() {
		return fmt.Errorf("unknown action %q", action)
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	if len(conflictIDs) == 1 {
		c, err := a.client.ResolveConflict(ctx, conflictIDs[0], act)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Resolved %s: %s\n", c.ID, act)
		return nil
	}

	resp, err := a.client.ResolveConflicts(ctx, conflictIDs, act)
	if err != nil {
		return err
	}
	for _, c := range resp.Resolved {
		fmt.Fprintf(a.out, "Resolved %s: %s\n", c.ID, act)
	}
	for id, reason := range resp.Failed {
		fmt.Fprintf(a.out, "Failed %s: %s\n", id, reason)
	}
	if len(resp.Failed) > 0 {
		return fmt.Errorf("%d of %d conflicts not resolved", len(resp.Failed), len(conflictIDs))
	}
	return nil
}

func (a *App) Audit(ctx context.Context, conflictID string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	records, err := a.client.ConflictAudit(ctx, conflictID)
	if err != nil {
		return err
	}
	printAudit(a.out, records)
	return nil
}
