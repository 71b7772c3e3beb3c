package resolution

import "github.com/dmitrijs2005/calsync/internal/models"

// Visibility applies resolved conflicts to one window. keep_internal hides
// the event, keep_external hides the appointment and merge keeps both as
// an accepted overlap. Open conflicts that refer to a hidden record are
// dropped since the decision already settled the pair.
func Visibility(appointments []models.Appointment, events []models.ExternalEvent, conflicts []models.SyncConflict) models.CalendarView {
	hiddenEvents := map[string]struct{}{}
	hiddenAppointments := map[string]struct{}{}
	for _, c := range conflicts {
		if !c.Resolved() {
			continue
		}
		switch c.Resolution.Action {
		case models.KeepInternal:
			hiddenEvents[eventKey(c)] = struct{}{}
		case models.KeepExternal:
			hiddenAppointments[c.AppointmentID] = struct{}{}
		}
	}

	view := models.CalendarView{
		Appointments:     []models.Appointment{},
		Events:           []models.ExternalEvent{},
		Conflicts:        []models.SyncConflict{},
		AcceptedOverlaps: []models.AcceptedOverlap{},
	}
	for _, a := range appointments {
		if _, hidden := hiddenAppointments[a.ID]; !hidden {
			view.Appointments = append(view.Appointments, a)
		}
	}
	for _, ev := range events {
		if _, hidden := hiddenEvents[ev.Key()]; !hidden {
			view.Events = append(view.Events, ev)
		}
	}

	for _, c := range conflicts {
		_, eventHidden := hiddenEvents[eventKey(c)]
		_, appointmentHidden := hiddenAppointments[c.AppointmentID]
		if eventHidden || appointmentHidden {
			continue
		}
		switch {
		case !c.Resolved():
			view.Conflicts = append(view.Conflicts, c)
		case c.Resolution.Action == models.Merge:
			view.AcceptedOverlaps = append(view.AcceptedOverlaps, models.AcceptedOverlap{
				ConflictID:    c.ID,
				AppointmentID: c.AppointmentID,
				EventKey:      eventKey(c),
			})
		}
	}
	return view
}

func eventKey(c models.SyncConflict) string {
	return c.IntegrationID + "/" + c.RemoteEventID
}
