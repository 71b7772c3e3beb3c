package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/calsync/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func printIntegrations(w io.Writer, list []models.Integration) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No integrations")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tCALENDAR\tSTATUS\tSYNC\tLAST SYNCED")
	for _, in := range list {
		synced := "never"
		if in.LastSyncedAt != nil {
			synced = in.LastSyncedAt.Local().Format(timeLayout)
		}
		sync := "off"
		if in.SyncEnabled {
			sync = "on"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", in.ID, in.Provider, in.CalendarName, in.Status, sync, synced)
	}
	_ = tw.Flush()
}

func printView(w io.Writer, v models.CalendarView, loc *time.Location) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "APPOINTMENTS")
	for _, a := range v.Appointments {
		start, end := a.Interval()
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", a.ID, start.In(loc).Format(timeLayout), end.In(loc).Format("15:04"), a.PatientName)
	}

	fmt.Fprintln(tw, "EXTERNAL EVENTS")
	for _, e := range v.Events {
		when := e.Start.In(loc).Format(timeLayout)
		if e.AllDay {
			when = e.Start.Format("2006-01-02") + " all day"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.RemoteID, when, e.End.In(loc).Format("15:04"), e.Title)
	}

	if len(v.Conflicts) > 0 {
		fmt.Fprintln(tw, "CONFLICTS")
		for _, c := range v.Conflicts {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", c.ID, c.Kind, c.AppointmentID, c.RemoteEventID)
		}
	}

	if len(v.AcceptedOverlaps) > 0 {
		fmt.Fprintln(tw, "ACCEPTED OVERLAPS")
		for _, o := range v.AcceptedOverlaps {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", o.ConflictID, o.AppointmentID, o.EventKey)
		}
	}

	if len(v.Failures) > 0 {
		fmt.Fprintln(tw, "UNAVAILABLE CALENDARS")
		for _, f := range v.Failures {
			fmt.Fprintf(tw, "  %s\t%s\n", f.IntegrationID, f.Reason)
		}
	}

	_ = tw.Flush()
}

func printAudit(w io.Writer, records []models.ResolutionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No decisions recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN	ACTION	BY")
	for _, r := range records {
		fmt.Fprintf(tw, "%s	%s	%s\n", r.ResolvedAt.Local().Format(timeLayout), r.Action, r.ResolvedBy)
	}
	_ = tw.Flush()
}
